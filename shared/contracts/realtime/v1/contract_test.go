package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "valid hello", env: Envelope{V: Version, Type: TypeHello, ID: "x", TS: now}},
		{name: "valid typing", env: Envelope{V: Version, Type: TypeTypingChange, ID: "x", TS: now}},
		{name: "missing v", env: Envelope{Type: TypeHello}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v0", Type: TypeHello}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "teleport"}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	p, _ := json.Marshal(HelloPayload{PrincipalID: "p1", Credential: "tok"})
	in := Envelope{V: Version, Type: TypeHello, ID: "abc", TS: time.Now().UTC().Truncate(time.Second), Payload: p}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Envelope
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != TypeHello || out.ID != "abc" {
		t.Fatalf("unexpected envelope: %+v", out)
	}

	var hp HelloPayload
	if err := json.Unmarshal(out.Payload, &hp); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if hp.PrincipalID != "p1" || hp.Credential != "tok" {
		t.Fatalf("unexpected payload: %+v", hp)
	}
}
