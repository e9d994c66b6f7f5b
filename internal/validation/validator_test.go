// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package validation

import (
	"math"
	"strings"
	"testing"
	"time"
)

type joinRequest struct {
	PartyID       string `json:"partyId" validate:"required,identifier"`
	ParticipantID string `json:"participantId" validate:"required,identifier"`
	Role          string `json:"role,omitempty" validate:"omitempty,oneof=host co-host member"`
}

type controlRequest struct {
	Action   string    `json:"action" validate:"required"`
	Value    *float64  `json:"value,omitempty" validate:"omitempty,finite"`
	IssuedAt time.Time `json:"issuedAt" validate:"required"`
	Limit    int       `validate:"min=1,max=10"`
}

func f64(v float64) *float64 { return &v }

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"minimal join", &joinRequest{PartyID: "p", ParticipantID: "alice"}},
		{"join with role", &joinRequest{PartyID: "movie-night_01", ParticipantID: "user:42", Role: "co-host"}},
		{"control without value", &controlRequest{Action: "play", IssuedAt: time.Now(), Limit: 1}},
		{"control with value", &controlRequest{Action: "seek", Value: f64(12.5), IssuedAt: time.Now(), Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.input); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantTag   string
	}{
		{"missing party", &joinRequest{ParticipantID: "alice"}, "partyId", "required"},
		{"party with space", &joinRequest{PartyID: "movie night", ParticipantID: "alice"}, "partyId", "identifier"},
		{"participant leading dash", &joinRequest{PartyID: "p", ParticipantID: "-alice"}, "participantId", "identifier"},
		{"participant too long", &joinRequest{PartyID: "p", ParticipantID: strings.Repeat("a", 129)}, "participantId", "identifier"},
		{"unknown role", &joinRequest{PartyID: "p", ParticipantID: "a", Role: "owner"}, "role", "oneof"},
		{"NaN value", &controlRequest{Action: "seek", Value: f64(math.NaN()), IssuedAt: time.Now(), Limit: 1}, "value", "finite"},
		{"infinite value", &controlRequest{Action: "seek", Value: f64(math.Inf(1)), IssuedAt: time.Now(), Limit: 1}, "value", "finite"},
		{"missing issuedAt", &controlRequest{Action: "play", Limit: 1}, "issuedAt", "required"},
		{"limit too high", &controlRequest{Action: "play", IssuedAt: time.Now(), Limit: 11}, "Limit", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() should have returned an error")
			}

			found := false
			for _, e := range err.Fields {
				if e.Field == tt.wantField && e.Tag == tt.wantTag {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error on field %s with tag %s, got: %v", tt.wantField, tt.wantTag, err)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&joinRequest{ParticipantID: "alice"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %s, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Message != "partyId is required" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "partyId" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&joinRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if !strings.Contains(apiErr.Message, "partyId is required") || !strings.Contains(apiErr.Message, "participantId is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_Empty(t *testing.T) {
	ve := &RequestValidationError{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q", ve.Error())
	}
	if ve.ToAPIError().Message != "Validation failed" {
		t.Errorf("Message = %q", ve.ToAPIError().Message)
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("partyID", "movie-night", "required,identifier"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := ValidateVar("partyID", "", "required,identifier")
	if err == nil {
		t.Fatal("expected error for empty id")
	}
	e := err.Fields[0]
	if e.Field != "partyID" || e.Tag != "required" {
		t.Errorf("field=%s tag=%s", e.Field, e.Tag)
	}
	if e.Error() != "partyID is required" {
		t.Errorf("message = %q", e.Error())
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"string max", &struct {
			Name string `json:"name" validate:"max=3"`
		}{Name: "abcd"}, "name must be at most 3 characters"},
		{"numeric min", &struct {
			Port int `koanf:"port" validate:"min=1"`
		}{}, "Port must be at least 1"},
		{"gte", &struct {
			Limit int `json:"limit" validate:"gte=5"`
		}{Limit: 1}, "limit must be greater than or equal to 5"},
		{"skipped json name", &struct {
			Secret string `json:"-" validate:"required"`
		}{}, "Secret is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := map[string]bool{
		"a":                      true,
		"Party_1":                true,
		"user:42":                true,
		"a.b-c":                  true,
		"":                       false,
		"_hidden":                false,
		"with space":             false,
		"slash/":                 false,
		strings.Repeat("x", 128): true,
		strings.Repeat("x", 129): false,
	}
	for in, want := range tests {
		if got := IsIdentifier(in); got != want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", in, got, want)
		}
	}
}
