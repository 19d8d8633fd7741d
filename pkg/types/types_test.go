package types

import "testing"

func TestTokenParseRoundTrip(t *testing.T) {
	want := TokenFromInt64(12345)
	got, err := ParseToken(want.String())
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got.Compare(want) != 0 {
		t.Errorf("expected round trip to produce an equal token, got %s want %s", got, want)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric token")
	}
}

func TestHostIDParseRoundTrip(t *testing.T) {
	want := NewHostID(0xdeadbeef, 0x1)
	got, err := ParseHostID(want.String())
	if err != nil {
		t.Fatalf("ParseHostID: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("expected round trip to produce an equal host id, got %v want %v", got, want)
	}
}

func TestGenerationLaterComparesValueThenVersion(t *testing.T) {
	cases := []struct {
		name  string
		g, o  Generation
		later bool
	}{
		{"higher value wins", Generation{Value: 2}, Generation{Value: 1}, true},
		{"lower value loses", Generation{Value: 1}, Generation{Value: 2}, false},
		{"same value, higher version wins", Generation{Value: 1, Version: 5}, Generation{Value: 1, Version: 4}, true},
		{"same value and version is not later", Generation{Value: 1, Version: 4}, Generation{Value: 1, Version: 4}, false},
	}
	for _, c := range cases {
		if got := c.g.Later(c.o); got != c.later {
			t.Errorf("%s: expected Later=%v, got %v", c.name, c.later, got)
		}
	}
}

func TestParseStatusSplitsOnComma(t *testing.T) {
	status, pieces := ParseStatus("NORMAL,100,200")
	if status != StatusNormal {
		t.Errorf("expected StatusNormal, got %s", status)
	}
	if len(pieces) != 2 || pieces[0] != "100" || pieces[1] != "200" {
		t.Errorf("expected pieces [100 200], got %v", pieces)
	}
}

func TestParseStatusWithNoPieces(t *testing.T) {
	status, pieces := ParseStatus("LEAVING")
	if status != StatusLeaving {
		t.Errorf("expected StatusLeaving, got %s", status)
	}
	if len(pieces) != 0 {
		t.Errorf("expected no pieces, got %v", pieces)
	}
}

func TestNodeOpsCmdIsPrepare(t *testing.T) {
	if !CmdBootstrapPrepare.IsPrepare() {
		t.Error("expected bootstrap_prepare to be a prepare command")
	}
	if CmdBootstrapHeartbeat.IsPrepare() {
		t.Error("expected bootstrap_heartbeat not to be a prepare command")
	}
}
