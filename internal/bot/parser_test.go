package bot

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser("RefLoopBot")

	cases := []struct {
		text      string
		wantCmd   string
		wantArgs  []string
		isCommand bool
	}{
		{"/start", "start", nil, true},
		{"/SUBMIT", "submit", nil, true},
		{"  /browse  ", "browse", nil, true},
		{"/approve 12", "approve", []string{"12"}, true},
		{"/reject 12 blurry screenshot", "reject", []string{"12", "blurry", "screenshot"}, true},
		{"/submit@RefLoopBot", "submit", nil, true},
		{"/submit@refloopbot", "submit", nil, true},
		{"/submit@OtherBot", "", nil, false},
		{"hello", "", nil, false},
		{"", "", nil, false},
		{"/", "", nil, false},
		{"https://example.com/ref", "", nil, false},
	}

	for _, c := range cases {
		cmd, args, ok := p.ParseCommand(c.text)
		if ok != c.isCommand || cmd != c.wantCmd || !reflect.DeepEqual(args, c.wantArgs) {
			t.Errorf("ParseCommand(%q) = (%q, %v, %v), want (%q, %v, %v)",
				c.text, cmd, args, ok, c.wantCmd, c.wantArgs, c.isCommand)
		}
	}
}
