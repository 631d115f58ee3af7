package domain

import (
	"errors"
	"testing"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"default", true},
		{"biology-101_v2.notes", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"with space", false},
		{`back\slash`, false},
	}
	for _, tt := range tests {
		err := ValidateCollectionName(tt.name)
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidCollectionName) {
			t.Errorf("%q: expected ErrInvalidCollectionName, got %v", tt.name, err)
		}
	}
}

func TestCollectionErrorUnwrap(t *testing.T) {
	err := NewCollectionError("load", "notes", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is to see ErrNotFound")
	}
	if got := err.Error(); got != `load collection "notes": collection not found` {
		t.Errorf("unexpected message %q", got)
	}
}

func TestIntentString(t *testing.T) {
	if IntentDocument.String() != "document" || IntentQuery.String() != "query" {
		t.Errorf("unexpected intent names %s/%s", IntentDocument, IntentQuery)
	}
}
