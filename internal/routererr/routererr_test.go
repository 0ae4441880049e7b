package routererr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringCoversEveryConstant(t *testing.T) {
	cases := map[Kind]string{
		InputMalformed:   "input_malformed",
		UnmappedEntity:   "unmapped_entity",
		ConfigInvalid:    "config_invalid",
		SendFailure:      "send_failure",
		BackpressureDrop: "backpressure_drop",
		Fatal:            "fatal",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", Kind(255).String())
}
