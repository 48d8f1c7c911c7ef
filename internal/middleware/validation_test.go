package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDealRequest struct {
	Title           string  `json:"title" validate:"required,min=3"`
	MaxParticipants int     `json:"max_participants" validate:"required,gte=2"`
	RegularPrice    float64 `json:"regular_price" validate:"required,gt=0"`
	Jam3aPrice      float64 `json:"jam3a_price" validate:"required,gt=0,ltfield=RegularPrice"`
	Status          string  `json:"status,omitempty" validate:"omitempty,oneof=active cancelled"`
}

func decode(body map[string]interface{}) error {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/api/deals", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	var dst testDealRequest
	return DecodeAndValidate(req, &dst)
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"title":            "Family pizza bundle",
		"max_participants": 10,
		"regular_price":    120.0,
		"jam3a_price":      90.0,
	}
}

func TestProperty_RequiredFieldsAreEnforced(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(hasTitle, hasMax, hasPrice bool) bool {
			body := validBody()
			if !hasTitle {
				delete(body, "title")
			}
			if !hasMax {
				delete(body, "max_participants")
			}
			if !hasPrice {
				delete(body, "regular_price")
			}

			err := decode(body)
			if hasTitle && hasMax && hasPrice {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_MaxParticipantsLowerBound(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fewer than two participants is rejected", prop.ForAll(
		func(max int) bool {
			body := validBody()
			body["max_participants"] = max

			err := decode(body)
			if max >= 2 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-5, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidationErrorsUseJSONFieldNames(t *testing.T) {
	body := validBody()
	body["jam3a_price"] = 150.0
	body["status"] = "expired"
	delete(body, "max_participants")

	err := decode(body)
	require.Error(t, err)

	fields := map[string]string{}
	for _, ve := range FormatValidationErrors(err) {
		fields[ve.Field] = ve.Message
	}

	assert.Equal(t, "This field is required", fields["max_participants"])
	assert.Equal(t, "Value must be less than RegularPrice", fields["jam3a_price"])
	assert.Equal(t, "Value must be one of: active cancelled", fields["status"])
}

func TestRespondWithDecodeError(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/deals", strings.NewReader("{not json"))
		var dst testDealRequest
		err := DecodeAndValidate(req, &dst)
		require.ErrorIs(t, err, ErrMalformedBody)

		w := httptest.NewRecorder()
		RespondWithDecodeError(w, err)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 400, w.Code)
		assert.Empty(t, response.Details)
	})

	t.Run("invalid fields", func(t *testing.T) {
		err := decode(map[string]interface{}{"title": "x"})
		require.Error(t, err)

		w := httptest.NewRecorder()
		RespondWithDecodeError(w, err)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 400, w.Code)
		assert.Contains(t, response.Details, "validation_errors")
	})
}
