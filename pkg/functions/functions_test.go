package functions

import (
	"context"
	"errors"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/policy/model"
)

type fakeRemote struct {
	service string
	req     model.RemoteRequest
	resp    string
	err     error
}

func (f *fakeRemote) Call(_ context.Context, service string, req model.RemoteRequest) (string, error) {
	f.service = service
	f.req = req
	return f.resp, f.err
}

type recordingObserver struct {
	names []string
	errs  []error
}

func (o *recordingObserver) ObserveFunctionCall(name string, err error, _ time.Duration) {
	o.names = append(o.names, name)
	o.errs = append(o.errs, err)
}

func TestRegistry_RegisterAndCall(t *testing.T) {
	r := NewRegistry(nil)

	err := r.Register("upper", FunctionFunc(func(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
		return args[0] + "!", nil
	}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.Register("upper", FunctionFunc(nil)); err == nil {
		t.Error("Register(duplicate) error = nil, want error")
	}
	if err := r.Register("", FunctionFunc(nil)); err == nil {
		t.Error("Register(empty name) error = nil, want error")
	}

	got, err := r.Call(context.Background(), "upper", []string{"hi"}, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "hi!" {
		t.Errorf("Call() = %q, want %q", got, "hi!")
	}

	if !r.Has("upper") || r.Has("lower") {
		t.Error("Has() reports wrong membership")
	}
}

func TestRegistry_UnknownFunction(t *testing.T) {
	r := NewRegistry(nil)
	obs := &recordingObserver{}
	r.SetObserver(obs)

	_, err := r.Call(context.Background(), "missing", nil, nil)
	if !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("Call() error = %v, want ErrUnknownFunction", err)
	}

	var cerr *CallError
	if !errors.As(err, &cerr) || cerr.Name != "missing" {
		t.Errorf("Call() error = %#v, want *CallError for missing", err)
	}

	if len(obs.names) != 1 || obs.names[0] != "missing" {
		t.Errorf("observer names = %v, want [missing]", obs.names)
	}
}

func TestRegistry_RecoversPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister("boom", FunctionFunc(func(context.Context, []string, *model.RequestContext) (string, error) {
		panic("kaboom")
	}))

	got, err := r.Call(context.Background(), "boom", nil, nil)
	if err == nil {
		t.Fatal("Call() error = nil, want error")
	}
	if got != "" {
		t.Errorf("Call() = %q, want empty", got)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)
	RegisterDemo(r)

	names := r.Names()
	if len(names) != 11 {
		t.Fatalf("Names() = %d entries, want 11", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names() not sorted: %q before %q", names[i-1], names[i])
		}
	}
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	doc := `{"user":{"name":"ann","age":30,"ratio":0.5,"vip":true,"tags":["a","b"],"addr":{"city":"x","zip":"1"},"none":null}}`

	tests := []struct {
		name    string
		fn      string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "json string", fn: "json_get_value", args: []string{doc, "user.name"}, want: "ann"},
		{name: "json int", fn: "json_get_value", args: []string{doc, "user.age"}, want: "30"},
		{name: "json float", fn: "json_get_value", args: []string{doc, "user.ratio"}, want: "0.500000"},
		{name: "json bool", fn: "json_get_value", args: []string{doc, "user.vip"}, want: "true"},
		{name: "json array index", fn: "json_get_value", args: []string{doc, "user.tags.1"}, want: "b"},
		{name: "json object", fn: "json_get_value", args: []string{doc, "user.addr"}, want: `{"city":"x","zip":"1"}`},
		{name: "json trimmed path", fn: "json_get_value", args: []string{doc, " user . name "}, want: "ann"},
		{name: "json top array", fn: "json_get_value", args: []string{`[{"k":"v"}]`, "0.k"}, want: "v"},
		{name: "json null", fn: "json_get_value", args: []string{doc, "user.none"}, wantErr: true},
		{name: "json missing key", fn: "json_get_value", args: []string{doc, "user.nope"}, wantErr: true},
		{name: "json bad index", fn: "json_get_value", args: []string{doc, "user.tags.x"}, wantErr: true},
		{name: "json out of range", fn: "json_get_value", args: []string{doc, "user.tags.5"}, wantErr: true},
		{name: "json scalar root", fn: "json_get_value", args: []string{`"s"`, "a"}, wantErr: true},
		{name: "json empty path element", fn: "json_get_value", args: []string{doc, "user..name"}, wantErr: true},
		{name: "json too few args", fn: "json_get_value", args: []string{doc}, wantErr: true},

		{name: "replace first only", fn: "replace", args: []string{"a-b-c", "-", "+"}, want: "a+b-c"},
		{name: "replace no match", fn: "replace", args: []string{"abc", "x", "y"}, want: "abc"},
		{name: "replace wrong arity", fn: "replace", args: []string{"a", "b"}, wantErr: true},

		{name: "number_add", fn: "number_add", args: []string{"1", "2", "-4"}, want: "-1"},
		{name: "number_add non integer", fn: "number_add", args: []string{"1", "x"}, wantErr: true},
		{name: "number_add empty", fn: "number_add", args: nil, wantErr: true},

		{name: "float_mul", fn: "float_mul", args: []string{"1.5", "2"}, want: "3.000000"},
		{name: "float_mul bad", fn: "float_mul", args: []string{"abc"}, wantErr: true},

		{name: "choose equal", fn: "choose_if_equal", args: []string{"a", "a", "yes", "no"}, want: "yes"},
		{name: "choose not equal", fn: "choose_if_equal", args: []string{"a", "b", "yes", "no"}, want: "no"},
		{name: "choose arity", fn: "choose_if_equal", args: []string{"a", "b", "yes"}, wantErr: true},

		{name: "url_encode", fn: "url_encode", args: []string{"a b&c/d~e"}, want: "a%20b%26c%2Fd~e"},
		{name: "url_encode empty", fn: "url_encode", args: []string{""}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Call(context.Background(), tt.fn, tt.args, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s(%q) = %q, want error", tt.fn, tt.args, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s(%q) error = %v", tt.fn, tt.args, err)
			}
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestServiceCalls(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	remote := &fakeRemote{resp: `{"ok":true}`}
	rc := &model.RequestContext{Remote: remote}

	got, err := r.Call(context.Background(), "service_http_post", []string{"billing", "/v1/query", `{"a":1`, `"b":2}`}, rc)
	if err != nil {
		t.Fatalf("service_http_post error = %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("service_http_post = %q", got)
	}
	if remote.service != "billing" || remote.req.Method != "POST" || remote.req.URL != "/v1/query" {
		t.Errorf("remote call = %s %+v", remote.service, remote.req)
	}
	if remote.req.Body != `{"a":1,"b":2}` {
		t.Errorf("post body = %q, want rejoined JSON", remote.req.Body)
	}

	if _, err := r.Call(context.Background(), "service_http_get", []string{"billing", "/v1/x"}, rc); err != nil {
		t.Fatalf("service_http_get error = %v", err)
	}
	if remote.req.Method != "GET" || remote.req.Body != "" {
		t.Errorf("get request = %+v", remote.req)
	}

	remote.err = errors.New("timeout")
	if _, err := r.Call(context.Background(), "service_http_get", []string{"billing", "/v1/x"}, rc); err == nil {
		t.Error("service_http_get with failing remote error = nil, want error")
	}

	if _, err := r.Call(context.Background(), "service_http_get", []string{"billing", "/v1/x"}, &model.RequestContext{}); !errors.Is(err, ErrNoRemote) {
		t.Errorf("service_http_get without remote error = %v, want ErrNoRemote", err)
	}
}

func TestDemoFunctions(t *testing.T) {
	r := NewRegistry(nil)
	RegisterDemo(r)

	ctx := context.Background()
	if got, _ := r.Call(ctx, "demo_get_cellular_data_usage", []string{"2018-01-02"}, nil); got != "0" {
		t.Errorf("usage(Jan) = %q, want 0", got)
	}
	if got, _ := r.Call(ctx, "demo_get_cellular_data_usage", []string{"2018-02-02"}, nil); got != "2" {
		t.Errorf("usage(Feb) = %q, want 2", got)
	}
	if got, _ := r.Call(ctx, "demo_get_cellular_data_left", []string{"2018-01-02"}, nil); got != "2" {
		t.Errorf("left(Jan) = %q, want 2", got)
	}
	if got, _ := r.Call(ctx, "demo_get_package_options", []string{"全国流量包"}, nil); got != "10元100M，50元1G" {
		t.Errorf("package options = %q", got)
	}
	if _, err := r.Call(ctx, "demo_get_package_options", nil, nil); err == nil {
		t.Error("package options without args error = nil, want error")
	}
}
