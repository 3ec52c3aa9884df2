package event

import "testing"

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     string
	}{
		{StatusLeft, StatusMember, "logLeft2Member"},
		{StatusLeft, StatusRestricted, "logLeft2Restricted"},
		{StatusMember, StatusLeft, "logMember2Left"},
		{StatusMember, StatusRestricted, "logMember2Restricted"},
		{StatusMember, StatusKicked, "logMember2Kicked"},
		{StatusMember, StatusAdministrator, "logMember2Administrator"},
		{StatusRestricted, StatusMember, "logRestricted2Member"},
		{StatusRestricted, StatusLeft, "logRestricted2Left"},
		{StatusAdministrator, StatusMember, "logAdministrator2Member"},
		{StatusAdministrator, StatusLeft, "logAdministrator2Left"},
		{StatusAdministrator, StatusKicked, "logAdministrator2Kicked"},
		{StatusKicked, StatusLeft, "logKicked2Left"},
	}

	for _, tt := range tests {
		got, ok := TransitionAction(tt.from, tt.to)
		if !ok {
			t.Fatalf("%s -> %s: edge missing", tt.from, tt.to)
		}
		if got != tt.want {
			t.Fatalf("%s -> %s: got %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionUndefinedEdges(t *testing.T) {
	t.Parallel()

	undefined := [][2]Status{
		{StatusLeft, StatusLeft},
		{StatusLeft, StatusAdministrator},
		{StatusLeft, StatusKicked},
		{StatusMember, StatusMember},
		{StatusRestricted, StatusKicked},
		{StatusRestricted, StatusAdministrator},
		{StatusAdministrator, StatusRestricted},
		{StatusKicked, StatusMember},
		{StatusKicked, StatusRestricted},
		{StatusKicked, StatusAdministrator},
	}
	for _, pair := range undefined {
		if action, ok := TransitionAction(pair[0], pair[1]); ok {
			t.Fatalf("%s -> %s unexpectedly maps to %q", pair[0], pair[1], action)
		}
	}
}

func TestTransitionTableSize(t *testing.T) {
	t.Parallel()

	total := 0
	for _, row := range transitions {
		total += len(row)
	}
	if total != 12 {
		t.Fatalf("table has %d edges, want 12", total)
	}
}
