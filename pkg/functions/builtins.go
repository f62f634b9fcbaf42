package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dmkit-hq/dmkit/pkg/policy/model"
)

// RegisterBuiltins registers the shared functions available to every
// deployment.
func RegisterBuiltins(r *Registry) {
	r.MustRegister("json_get_value", FunctionFunc(JSONGetValue))
	r.MustRegister("replace", FunctionFunc(Replace))
	r.MustRegister("number_add", FunctionFunc(NumberAdd))
	r.MustRegister("float_mul", FunctionFunc(FloatMul))
	r.MustRegister("choose_if_equal", FunctionFunc(ChooseIfEqual))
	r.MustRegister("url_encode", FunctionFunc(URLEncode))
	r.MustRegister("service_http_get", FunctionFunc(ServiceHTTPGet))
	r.MustRegister("service_http_post", FunctionFunc(ServiceHTTPPost))
}

func argCount(args []string, want int) error {
	if len(args) < want {
		return fmt.Errorf("%w: need at least %d, got %d", ErrInvalidArgs, want, len(args))
	}
	return nil
}

// JSONGetValue extracts a value from a JSON document.
//
//	args[0]: JSON object or array
//	args[1]: dot-separated path; array elements are addressed by index
//
// Strings are returned as-is, integers in decimal, other numbers with six
// decimals, and objects or arrays as compact JSON. A null value is a miss.
func JSONGetValue(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 2); err != nil {
		return "", err
	}
	path := args[1]
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidArgs)
	}

	current := json.RawMessage(bytes.TrimSpace([]byte(args[0])))
	if len(current) == 0 || (current[0] != '{' && current[0] != '[') {
		return "", fmt.Errorf("%w: not a JSON object or array", ErrInvalidArgs)
	}
	if !json.Valid(current) {
		return "", fmt.Errorf("%w: malformed JSON", ErrInvalidArgs)
	}

	for _, key := range strings.Split(path, ".") {
		key = strings.TrimSpace(key)
		if key == "" {
			return "", fmt.Errorf("%w: empty path element in %q", ErrInvalidArgs, path)
		}

		switch current[0] {
		case '{':
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(current, &obj); err != nil {
				return "", err
			}
			next, ok := obj[key]
			if !ok {
				return "", fmt.Errorf("key %q not found", key)
			}
			current = bytes.TrimSpace(next)
		case '[':
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 {
				return "", fmt.Errorf("%w: invalid array index %q", ErrInvalidArgs, key)
			}
			var arr []json.RawMessage
			if err := json.Unmarshal(current, &arr); err != nil {
				return "", err
			}
			if idx >= len(arr) {
				return "", fmt.Errorf("array index %d out of range", idx)
			}
			current = bytes.TrimSpace(arr[idx])
		default:
			return "", fmt.Errorf("cannot descend into scalar at %q", key)
		}
	}

	return formatJSONValue(current)
}

func formatJSONValue(raw json.RawMessage) (string, error) {
	switch raw[0] {
	case 'n':
		return "", fmt.Errorf("value is null")
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	case 't', 'f':
		return string(raw), nil
	}

	num := json.Number(raw)
	if i, err := num.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := num.Float64()
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', 6, 64), nil
}

// Replace substitutes the first occurrence of args[1] in args[0] with args[2].
func Replace(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if len(args) != 3 {
		return "", fmt.Errorf("%w: need exactly 3, got %d", ErrInvalidArgs, len(args))
	}
	return strings.Replace(args[0], args[1], args[2], 1), nil
}

// NumberAdd sums integer arguments.
func NumberAdd(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	var sum int64
	for _, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an integer", ErrInvalidArgs, arg)
		}
		sum += n
	}
	return strconv.FormatInt(sum, 10), nil
}

// FloatMul multiplies numeric arguments. The product has six decimals.
func FloatMul(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	product := 1.0
	for _, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a number", ErrInvalidArgs, arg)
		}
		product *= f
	}
	return strconv.FormatFloat(product, 'f', 6, 64), nil
}

// ChooseIfEqual returns args[2] when args[0] equals args[1], otherwise args[3].
func ChooseIfEqual(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 4); err != nil {
		return "", err
	}
	if args[0] == args[1] {
		return args[2], nil
	}
	return args[3], nil
}

// URLEncode percent-encodes everything but unreserved characters.
func URLEncode(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	return strings.ReplaceAll(url.QueryEscape(args[0]), "+", "%20"), nil
}

// ServiceHTTPGet issues a GET against a named remote service.
//
//	args[0]: service name
//	args[1]: url
func ServiceHTTPGet(ctx context.Context, args []string, rc *model.RequestContext) (string, error) {
	if err := argCount(args, 2); err != nil {
		return "", err
	}
	if rc == nil || rc.Remote == nil {
		return "", ErrNoRemote
	}
	return rc.Remote.Call(ctx, args[0], model.RemoteRequest{URL: args[1], Method: http.MethodGet})
}

// ServiceHTTPPost issues a POST against a named remote service. Arguments
// from args[2] on are joined with commas to form the body, since the
// argument list itself was split on commas.
func ServiceHTTPPost(ctx context.Context, args []string, rc *model.RequestContext) (string, error) {
	if err := argCount(args, 2); err != nil {
		return "", err
	}
	if rc == nil || rc.Remote == nil {
		return "", ErrNoRemote
	}
	body := strings.Join(args[2:], ",")
	return rc.Remote.Call(ctx, args[0], model.RemoteRequest{URL: args[1], Method: http.MethodPost, Body: body})
}
