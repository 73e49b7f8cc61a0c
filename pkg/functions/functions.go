// Package functions is an example set of special functions for telephony
// slot conversion. The core never registers these itself; callers opt in
// with Register.
package functions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/goliatone/go-protoconv/pkg/convctx"
	"github.com/goliatone/go-protoconv/pkg/render"
)

// PhoneTypeVariable is the regular variable the telephony functions read.
const PhoneTypeVariable = "phone_type"

// All returns the function set keyed by special variable name, without the
// reserved prefix.
func All() map[string]render.Func {
	return map[string]render.Func{
		"sid":         SID,
		"label":       Label,
		"priority":    Priority,
		"timestamp":   Timestamp,
		"session_id":  SessionID,
		"device_type": DeviceType,
		"array_index": ArrayIndex,
		"array_total": ArrayTotal,
		"progress":    ProgressText,
		"is_last":     IsLast,
	}
}

// Register adds every function in All to reg.
func Register(reg *render.Registry) error {
	if err := reg.RegisterAll(All()); err != nil {
		return fmt.Errorf("functions: %w", err)
	}
	return nil
}

// SID maps the phone type to a slot id for A to C conversions.
func SID(ctx convctx.Context) (any, error) {
	switch {
	case ctx.SourceFamily == "A" && ctx.TargetFamily == "C":
		switch phoneType(ctx) {
		case "手机":
			return "PHONE_TYPE_MOBILE", nil
		case "座机":
			return "PHONE_TYPE_LANDLINE", nil
		default:
			return "PHONE_TYPE_UNKNOWN", nil
		}
	case ctx.SourceFamily == "B" && ctx.TargetFamily == "C":
		return "PHONE_TYPE_GENERIC", nil
	case ctx.SourceFamily == "A" && ctx.TargetFamily == "B":
		return "PHONE_TYPE_LABEL", nil
	}
	return "unknown", nil
}

// Label returns the slot label used by the target family.
func Label(ctx convctx.Context) (any, error) {
	switch ctx.TargetFamily {
	case "C":
		return "O", nil
	case "B":
		return "B", nil
	}
	return "GENERIC", nil
}

// Priority ranks telephony actions.
func Priority(ctx convctx.Context) (any, error) {
	if ctx.SourceValue("domain", "") != "telephone" {
		return "NORMAL", nil
	}
	switch ctx.SourceValue("action", "") {
	case "DIAL":
		return "HIGH", nil
	case "ANSWER":
		return "MEDIUM", nil
	}
	return "NORMAL", nil
}

// Timestamp formats the conversion start time.
func Timestamp(ctx convctx.Context) (any, error) {
	if ctx.TargetFamily == "C" {
		return ctx.StartedAt.Format("2006-01-02T15:04:05"), nil
	}
	return ctx.StartedAt.Format("20060102150405"), nil
}

// SessionID returns a random session id.
func SessionID(ctx convctx.Context) (any, error) {
	if ctx.TargetFamily == "C" {
		id, err := randomHex(8)
		if err != nil {
			return nil, err
		}
		return "session_" + id, nil
	}
	return randomHex(4)
}

// DeviceType infers the device from the phone type.
func DeviceType(ctx convctx.Context) (any, error) {
	switch phoneType(ctx) {
	case "手机":
		return "MOBILE", nil
	case "座机":
		return "LANDLINE", nil
	case "软电话":
		return "SOFTPHONE", nil
	}
	return "UNKNOWN", nil
}

// ArrayIndex returns the zero-based element index, or "0" outside arrays.
func ArrayIndex(ctx convctx.Context) (any, error) {
	idx, _ := ctx.ArrayIndex()
	return strconv.Itoa(idx), nil
}

// ArrayTotal returns the element count of the enclosing array.
func ArrayTotal(ctx convctx.Context) (any, error) {
	total, _ := ctx.ArrayTotal()
	return strconv.Itoa(total), nil
}

// ProgressText renders progress as "2/3 (66.7%)".
func ProgressText(ctx convctx.Context) (any, error) {
	p, ok := ctx.Progress()
	if !ok {
		return "", nil
	}
	return p, nil
}

// IsLast returns "true" on the last element of an array.
func IsLast(ctx convctx.Context) (any, error) {
	return strconv.FormatBool(ctx.IsLast()), nil
}

func phoneType(ctx convctx.Context) string {
	if v, ok := ctx.Variable(PhoneTypeVariable); ok {
		return fmt.Sprint(v)
	}
	if v := ctx.ElementValue(PhoneTypeVariable, nil); v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("functions: session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
