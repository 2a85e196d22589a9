package entity

import (
	"errors"
	"testing"
	"time"
)

func TestRecordKey_RoundTrip(t *testing.T) {
	key := NewRecordKey(NetworkRinkeby, "0xAbC0000000000000000000000000000000000001")

	encoded := key.String()
	if encoded != "4:0xabc0000000000000000000000000000000000001" {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	parsed, err := ParseRecordKey(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != key {
		t.Errorf("ParseRecordKey(%q) = %+v, want %+v", encoded, parsed, key)
	}
}

func TestParseRecordKey_Malformed(t *testing.T) {
	for _, in := range []string{"", "nocolon", "x:0xabc", "0:0xabc", "1:"} {
		if _, err := ParseRecordKey(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseRecordKey(%q): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestVerificationsRecord_PlatformInOneMapOnly(t *testing.T) {
	r := NewVerificationsRecord(NewRecordKey(NetworkMainnet, "0x01"))
	social := BoundSocial{Platform: PlatformTwitter, Username: "alice"}

	r.StartBinding(social)
	if _, ok := r.BindingSocials[PlatformTwitter]; !ok {
		t.Fatal("expected pending twitter binding")
	}

	r.CompleteBinding(social)
	if _, ok := r.BindingSocials[PlatformTwitter]; ok {
		t.Error("pending entry should be cleared after completion")
	}
	bound, ok := r.BoundSocials[PlatformTwitter]
	if !ok {
		t.Fatal("expected bound twitter entry")
	}
	if bound.Status != BindingChecked {
		t.Errorf("expected status checked, got %s", bound.Status)
	}

	r.StartBinding(social)
	if _, ok := r.BoundSocials[PlatformTwitter]; ok {
		t.Error("re-proving should remove the bound entry")
	}
}

func TestVerificationsUpdate_Apply_PartialMerge(t *testing.T) {
	r := NewVerificationsRecord(NewRecordKey(NetworkMainnet, "0x01"))
	r.BoundSocials[PlatformFacebook] = BoundSocial{Platform: PlatformFacebook}
	r.LastFetchBlock = 10

	block := int64(42)
	VerificationsUpdate{LastFetchBlock: &block}.Apply(r)

	if r.LastFetchBlock != 42 {
		t.Errorf("expected LastFetchBlock=42, got %d", r.LastFetchBlock)
	}
	if len(r.BoundSocials) != 1 {
		t.Errorf("bound socials should be untouched, got %v", r.BoundSocials)
	}

	VerificationsUpdate{BoundSocials: SocialMap{}}.Apply(r)
	if len(r.BoundSocials) != 0 {
		t.Errorf("empty map should replace bound socials, got %v", r.BoundSocials)
	}
}

func TestVerificationsUpdate_Validate(t *testing.T) {
	neg := int64(-1)
	if err := (VerificationsUpdate{LastFetchBlock: &neg}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerificationsRecord_CloneIsDeep(t *testing.T) {
	r := NewVerificationsRecord(NewRecordKey(NetworkMainnet, "0x01"))
	c := r.Clone()
	c.BoundSocials[PlatformTwitter] = BoundSocial{Platform: PlatformTwitter}

	if len(r.BoundSocials) != 0 {
		t.Error("mutating the clone changed the original")
	}
}

func TestVerifyStatus_NeedsRecheck(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status VerifyStatus
		want   bool
	}{
		{name: "never checked", status: VerifyStatus{}, want: true},
		{name: "unknown", status: NewVerifyStatus(VerifyUnknown, now), want: true},
		{name: "fresh", status: NewVerifyStatus(VerifyValid, now.Add(-time.Hour)), want: false},
		{name: "exactly one day", status: NewVerifyStatus(VerifyValid, now.Add(-24*time.Hour)), want: false},
		{name: "stale", status: NewVerifyStatus(VerifyNotFound, now.Add(-25*time.Hour)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.NeedsRecheck(now); got != tt.want {
				t.Errorf("NeedsRecheck() = %v, want %v", got, tt.want)
			}
		})
	}
}
