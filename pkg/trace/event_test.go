package trace

import "testing"

func TestCategoryString(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{CategoryState, "STATE"},
		{CategoryDispatch, "DISPATCH"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		e    StateEntity
		want string
	}{
		{StateEntityDriver, "DRIVER"},
		{StateEntityNode, "NODE"},
		{StateEntity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.e, got, tt.want)
		}
	}
}
