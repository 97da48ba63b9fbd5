package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/identity"
	"github.com/leonletto/carlot/internal/types"
)

// requestValidate checks RPC request structs. Field names in errors are the
// JSON names clients sent.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()

	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = requestValidate.RegisterValidation("entityid", validateEntityID)
	_ = requestValidate.RegisterValidation("msgid", validateMessageID)
	_ = requestValidate.RegisterValidation("msgtype", validateMessageType)
	_ = requestValidate.RegisterValidation("convkey", validateConversationKey)
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateEntityID accepts marketplace user and listing ids (UUIDs).
func validateEntityID(fl validator.FieldLevel) bool {
	return identity.ValidateUUID(fl.Field().String()) == nil
}

func validateMessageID(fl validator.FieldLevel) bool {
	return identity.IsMessageID(fl.Field().String())
}

func validateMessageType(fl validator.FieldLevel) bool {
	return types.MessageType(fl.Field().String()).Valid()
}

// validateConversationKey accepts "<listing_id>/<other_user_id>" with both
// halves UUIDs.
func validateConversationKey(fl validator.FieldLevel) bool {
	_, err := parseKey(fl.Field().String())
	return err == nil
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// parseKey parses a conversation key and normalizes both ids.
func parseKey(s string) (types.ConversationKey, error) {
	k, err := types.ParseConversationKey(s)
	if err != nil {
		return types.ConversationKey{}, err
	}
	if k.ListingID, err = identity.NormalizeUUID(k.ListingID); err != nil {
		return types.ConversationKey{}, err
	}
	if k.OtherUserID, err = identity.NormalizeUUID(k.OtherUserID); err != nil {
		return types.ConversationKey{}, err
	}
	return k, nil
}

// parseKeys parses keys already checked by the convkey tag.
func parseKeys(ss []string) []types.ConversationKey {
	out := make([]types.ConversationKey, 0, len(ss))
	seen := make(map[types.ConversationKey]bool, len(ss))
	for _, s := range ss {
		k, err := parseKey(s)
		if err != nil || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// normalizeID lowercases a UUID already checked by the entityid tag.
func normalizeID(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s)
}

// decode unmarshals params into req. Malformed JSON is a validation error
// on the request as a whole.
func decode(params json.RawMessage, req any) error {
	if err := json.Unmarshal(params, req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.InvalidField(typeErr.Field, "has the wrong type, want "+typeErr.Type.String())
		}
		return apperr.InvalidField("params", err.Error())
	}
	return nil
}

// validate runs the struct tags on req and converts failures into a
// validation error with one entry per field.
func validate(req any) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.InvalidField("params", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, dup := fields[fe.Field()]; dup {
			continue
		}
		fields[fe.Field()] = describe(fe)
	}
	return apperr.Validation(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "entityid":
		return "must be a UUID"
	case "msgid":
		return "must be a message id"
	case "msgtype":
		return "must be one of text, inquiry, offer"
	case "convkey":
		return "must be <listing_id>/<other_user_id> with UUIDs"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag()
	}
}
