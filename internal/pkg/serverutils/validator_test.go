package serverutils

import (
	"strings"
	"testing"

	"doc-qa-be/internal/dto"

	"github.com/stretchr/testify/assert"
)

func TestValidateStreamRequestModeIsOpaque(t *testing.T) {
	// the producer owns mode recognition; transport only bounds the length
	for _, mode := range []string{"", "auto", "documents_only", "hybrid", "graph_walk"} {
		err := ValidateRequest(dto.StreamChatRequest{Message: "hi", Mode: mode})
		assert.NoError(t, err, "mode %q", mode)
	}

	err := ValidateRequest(dto.StreamChatRequest{Message: "hi", Mode: strings.Repeat("m", 65)})
	assert.Error(t, err)
}

func TestValidateStreamRequestRequiresMessage(t *testing.T) {
	err := ValidateRequest(dto.StreamChatRequest{ConversationId: "c1"})
	assert.Error(t, err)
}
