package goals

// Goal is a user-defined target tied to a catalog metric. Progress is
// an absolute value, starting at 0; the signed difference between two
// consecutive progress values is what ends up in the metric ledger.
type Goal struct {
	ID          int    `json:"id"`
	UserID      int    `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric"`
	Objective   int    `json:"objective"`
	TimeLimit   string `json:"timeLimit"`
	Progress    int    `json:"progress"`
}

// Update carries a partial goal update. Nil fields are left untouched.
// The target metric is fixed at creation and cannot be changed, the
// ledger history would become meaningless otherwise.
type Update struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Objective   *int    `json:"objective"`
	TimeLimit   *string `json:"timeLimit"`
	Progress    *int    `json:"progress"`
}

// GoalWithImage is a goal joined with its metric's display unit and
// its image payload, base64 encoded, or empty when the user never
// attached one.
type GoalWithImage struct {
	Goal
	Unit  string `json:"unit"`
	Image string `json:"image"`
}
