package functions

import (
	"context"
	"strings"

	"dmkit-hq/dmkit/pkg/policy/model"
)

// RegisterDemo registers the mock functions used by the bundled demo
// product. They return canned data instead of calling a backend.
func RegisterDemo(r *Registry) {
	r.MustRegister("demo_get_cellular_data_usage", FunctionFunc(demoCellularDataUsage))
	r.MustRegister("demo_get_cellular_data_left", FunctionFunc(demoCellularDataLeft))
	r.MustRegister("demo_get_package_options", FunctionFunc(demoPackageOptions))
}

// isCurrentMonth reports whether a YYYY-MM-DD date falls in January, which
// the demo treats as the current billing month.
func isCurrentMonth(date string) bool {
	parts := strings.Split(date, "-")
	return len(parts) > 1 && parts[1] == "01"
}

func demoCellularDataUsage(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	if isCurrentMonth(args[0]) {
		return "0", nil
	}
	return "2", nil
}

func demoCellularDataLeft(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	if isCurrentMonth(args[0]) {
		return "2", nil
	}
	return "0", nil
}

func demoPackageOptions(_ context.Context, args []string, _ *model.RequestContext) (string, error) {
	if err := argCount(args, 1); err != nil {
		return "", err
	}
	switch args[0] {
	case "省内流量包":
		return "10元100M，20元300M", nil
	case "全国流量包":
		return "10元100M，50元1G", nil
	default:
		return "20元300M，50元1G", nil
	}
}
