package mcp

import (
	stderrors "errors"
	"fmt"

	"github.com/moolen/magma/internal/embedding"
	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/mcp/tools"
)

// ToolErrorText renders a domain error as the user-facing text of an
// isError tool response, prefixed with the tool name. Validation
// failures list one "path: message" line per violated field.
func ToolErrorText(toolName string, err error) string {
	var verrs tools.ValidationErrors
	if stderrors.As(err, &verrs) {
		return fmt.Sprintf("%s: invalid input\n%s", toolName, verrs.Error())
	}

	var perr *embedding.ProviderError
	if stderrors.As(err, &perr) {
		return fmt.Sprintf("%s: %s", toolName, embedding.UserMessage(err))
	}

	var derr *errors.Error
	if stderrors.As(err, &derr) {
		switch derr.Kind {
		case errors.KindParse:
			return fmt.Sprintf("%s: Failed to parse graph data", toolName)
		case errors.KindNotFound:
			return fmt.Sprintf("%s: %s", toolName, derr.Message)
		case errors.KindRelationship:
			return fmt.Sprintf("%s: Failed to create/remove relationship", toolName)
		case errors.KindTemporal:
			return fmt.Sprintf("%s: Temporal query failed", toolName)
		case errors.KindCausalTraversal:
			return fmt.Sprintf("%s: Causal traversal failed: %s", toolName, derr.Message)
		case errors.KindTimeout:
			return fmt.Sprintf("%s: Request timed out: %s", toolName, derr.Message)
		case errors.KindValidation:
			return fmt.Sprintf("%s: invalid input\n%s", toolName, derr.Message)
		case errors.KindBackend:
			return fmt.Sprintf("%s: Backend failure: %s", toolName, derr.Message)
		}
	}

	return fmt.Sprintf("%s: %v", toolName, err)
}
