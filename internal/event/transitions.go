package event

// transitions maps (old status, new status) to the log tag of the
// recognized membership change. Pairs outside the table are deliberate
// no-ops.
var transitions = map[Status]map[Status]string{
	StatusLeft: {
		StatusMember:     "logLeft2Member",
		StatusRestricted: "logLeft2Restricted",
	},
	StatusMember: {
		StatusLeft:          "logMember2Left",
		StatusRestricted:    "logMember2Restricted",
		StatusKicked:        "logMember2Kicked",
		StatusAdministrator: "logMember2Administrator",
	},
	StatusRestricted: {
		StatusMember: "logRestricted2Member",
		StatusLeft:   "logRestricted2Left",
	},
	StatusAdministrator: {
		StatusMember: "logAdministrator2Member",
		StatusLeft:   "logAdministrator2Left",
		StatusKicked: "logAdministrator2Kicked",
	},
	StatusKicked: {
		StatusLeft: "logKicked2Left",
	},
}

func TransitionAction(from, to Status) (string, bool) {
	action, ok := transitions[from][to]
	return action, ok
}
