package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return body
}

func TestApplyOps(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ops     []PatchOp
		wantErr bool
		check   func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "set top-level field",
			body: `{"status":"draft"}`,
			ops:  []PatchOp{Set("/status", "published")},
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "published", body["status"])
			},
		},
		{
			name: "set nested array element field",
			body: `{"lines":[{"price":{"amountCents":100}}]}`,
			ops:  []PatchOp{Set("/lines/0/price/amountCents", 250)},
			check: func(t *testing.T, body map[string]interface{}) {
				line := body["lines"].([]interface{})[0].(map[string]interface{})
				price := line["price"].(map[string]interface{})
				assert.Equal(t, 250, price["amountCents"])
			},
		},
		{
			name: "append to nested array",
			body: `{"lines":[{"paidStatusLog":[{"status":"CREATED"}]}]}`,
			ops:  []PatchOp{Add("/lines/0/paidStatusLog/-", map[string]interface{}{"status": "AWAITING_CHARGE"})},
			check: func(t *testing.T, body map[string]interface{}) {
				line := body["lines"].([]interface{})[0].(map[string]interface{})
				log := line["paidStatusLog"].([]interface{})
				require.Len(t, log, 2)
				assert.Equal(t, "AWAITING_CHARGE", log[1].(map[string]interface{})["status"])
			},
		},
		{
			name: "append starts missing array",
			body: `{"customer":{}}`,
			ops:  []PatchOp{Add("/customer/savedCards/-", map[string]interface{}{"last4": "4242"})},
			check: func(t *testing.T, body map[string]interface{}) {
				customer := body["customer"].(map[string]interface{})
				cards := customer["savedCards"].([]interface{})
				require.Len(t, cards, 1)
			},
		},
		{
			name: "add introduces object key",
			body: `{"subscription":{}}`,
			ops:  []PatchOp{Add("/subscription/cardStatus", "active")},
			check: func(t *testing.T, body map[string]interface{}) {
				sub := body["subscription"].(map[string]interface{})
				assert.Equal(t, "active", sub["cardStatus"])
			},
		},
		{
			name: "remove key",
			body: `{"a":1,"b":2}`,
			ops:  []PatchOp{Remove("/b")},
			check: func(t *testing.T, body map[string]interface{}) {
				_, ok := body["b"]
				assert.False(t, ok)
			},
		},
		{
			name:    "set through missing segment fails",
			body:    `{"lines":[]}`,
			ops:     []PatchOp{Set("/billing/city", "Austin")},
			wantErr: true,
		},
		{
			name:    "array index out of range fails",
			body:    `{"lines":[{"id":"a"}]}`,
			ops:     []PatchOp{Set("/lines/3/id", "b")},
			wantErr: true,
		},
		{
			name:    "remove missing key fails",
			body:    `{"a":1}`,
			ops:     []PatchOp{Remove("/b")},
			wantErr: true,
		},
		{
			name:    "append to non-array fails",
			body:    `{"tags":"nope"}`,
			ops:     []PatchOp{Add("/tags/-", "x")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := decodeBody(t, tt.body)
			err := applyOps(body, tt.ops)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, body)
		})
	}
}

func TestApplyOpsSequential(t *testing.T) {
	body := decodeBody(t, `{"lines":[{"paidStatusLog":[]},{"paidStatusLog":[]}]}`)

	ops := []PatchOp{
		Add("/lines/0/paidStatusLog/-", map[string]interface{}{"status": "AWAITING_CHARGE"}),
		Add("/lines/1/paidStatusLog/-", map[string]interface{}{"status": "AWAITING_CHARGE"}),
		Add("/lines/0/paidStatusLog/-", map[string]interface{}{"status": "CHARGED"}),
	}
	require.NoError(t, applyOps(body, ops))

	first := body["lines"].([]interface{})[0].(map[string]interface{})["paidStatusLog"].([]interface{})
	second := body["lines"].([]interface{})[1].(map[string]interface{})["paidStatusLog"].([]interface{})
	assert.Len(t, first, 2)
	assert.Len(t, second, 1)
}
