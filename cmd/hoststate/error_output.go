package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/hoststate/core/errors"
)

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(asString(result["correlation_id"])) == "" {
		if correlationID := currentCorrelationID(); correlationID != "" {
			result["correlation_id"] = correlationID
		}
	}
	errorText := strings.TrimSpace(asString(result["error"]))
	if errorText == "" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_code"])) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if strings.TrimSpace(asString(result["error_category"])) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if _, exists := result["retryable"]; !exists {
		category := coreerrors.Category(asString(result["error_category"]))
		result["retryable"] = defaultRetryable(category)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategorySchemaInvalid:
		return exitSchemaInvalid
	case coreerrors.CategoryStateCorrupt:
		return exitStateCorrupt
	case coreerrors.CategoryStateContention:
		return exitStateContention
	case coreerrors.CategoryObserverFailure:
		return exitObserverFailure
	case coreerrors.CategoryIOFailure, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitSchemaInvalid:
		return coreerrors.CategorySchemaInvalid
	case exitStateCorrupt:
		return coreerrors.CategoryStateCorrupt
	case exitStateContention:
		return coreerrors.CategoryStateContention
	case exitObserverFailure:
		return coreerrors.CategoryObserverFailure
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitSchemaInvalid:
		return "schema_invalid"
	case exitStateCorrupt:
		return "state_corrupt"
	case exitStateContention:
		return "state_locked"
	case exitObserverFailure:
		return "observer_failed"
	default:
		return "internal_failure"
	}
}

func defaultRetryable(category coreerrors.Category) bool {
	return category == coreerrors.CategoryStateContention || category == coreerrors.CategoryObserverFailure
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
