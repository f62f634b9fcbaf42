package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/policy/template"
)

// LoaderConfig contains configuration for the rule set loader.
type LoaderConfig struct {
	// MaxFileSize is the maximum size of any configuration file in bytes (default: 10MB)
	MaxFileSize int64

	// Strict fails the whole load on any invalid domain or policy instead
	// of skipping it with a warning
	Strict bool
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		MaxFileSize: 10 * 1024 * 1024,
	}
}

// Report summarizes one load.
type Report struct {
	Products int
	Domains  int
	Policies int

	// Skipped counts domains and policies dropped as invalid.
	Skipped int

	// Warnings lists every non-fatal problem found.
	Warnings []string
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Loader builds rule set generations from disk. It holds no state between
// loads and never touches a published generation.
type Loader struct {
	config *LoaderConfig
	logger *slog.Logger
}

// NewLoader creates a new loader with the given configuration.
func NewLoader(config *LoaderConfig, logger *slog.Logger) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config: config,
		logger: logger.With("component", "policy.loader"),
	}
}

// Load builds a new generation from the product index at path.
func (l *Loader) Load(path string) (*model.RuleSet, error) {
	rs, _, err := l.LoadWithReport(path)
	return rs, err
}

// LoadWithReport is Load that also returns what was loaded and skipped.
func (l *Loader) LoadWithReport(path string) (*model.RuleSet, *Report, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, nil, err
	}

	data, err := l.readFile(path)
	if err != nil {
		return nil, nil, err
	}

	digest := sha256.New()
	digest.Write(data)

	report := &Report{}
	errs := &ErrorList{}
	baseDir := filepath.Dir(path)
	products := make(map[string]model.Product)

	err = model.DecodeOrderedObject(data, func(product string, raw json.RawMessage) error {
		domains := make(model.Product)
		err := model.DecodeOrderedObject(raw, func(domain string, entryRaw json.RawMessage) error {
			dp, err := l.loadDomainEntry(schemas, baseDir, product, domain, entryRaw, digest, report)
			if err != nil {
				report.Skipped++
				report.warn("%v", err)
				l.logger.Warn("Skipping domain", "product", product, "domain", domain, "error", err)
				errs.Add(err)
				return nil
			}
			domains[domain] = dp
			report.Domains++
			report.Policies += dp.PolicyCount()
			return nil
		})
		if err != nil {
			return &ParseError{
				FilePath: path,
				Message:  fmt.Sprintf("product %q must be a JSON object of domains", product),
				Cause:    err,
			}
		}
		products[product] = domains
		report.Products++
		return nil
	})
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return nil, report, perr
		}
		return nil, report, &ParseError{
			FilePath: path,
			Offset:   syntaxOffset(err),
			Message:  "product index must be a JSON object",
			Cause:    err,
		}
	}

	if l.config.Strict && errs.HasErrors() {
		return nil, report, errs.ToError()
	}

	rs := &model.RuleSet{
		Products: products,
		Version:  hex.EncodeToString(digest.Sum(nil)),
		Source:   path,
		LoadedAt: time.Now(),
	}

	l.logger.Debug("Rule set built",
		"path", path,
		"products", report.Products,
		"domains", report.Domains,
		"policies", report.Policies,
		"skipped", report.Skipped,
	)
	return rs, report, nil
}

type domainEntry struct {
	Score    int    `json:"score"`
	ConfPath string `json:"conf_path"`
}

func (l *Loader) loadDomainEntry(s *schemas, baseDir, product, domain string, raw json.RawMessage, digest hash.Hash, report *Report) (*model.DomainPolicy, error) {
	if err := validateInstance(s.domainEntry, raw); err != nil {
		return nil, &ValidationError{Product: product, Domain: domain, Index: -1, Message: "invalid domain entry", Cause: err}
	}

	var entry domainEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, &ValidationError{Product: product, Domain: domain, Index: -1, Message: "invalid domain entry", Cause: err}
	}

	confPath := entry.ConfPath
	if !filepath.IsAbs(confPath) {
		confPath = filepath.Join(baseDir, confPath)
	}

	data, err := l.readFile(confPath)
	if err != nil {
		return nil, err
	}
	digest.Write(data)

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &ParseError{
			FilePath: confPath,
			Offset:   syntaxOffset(err),
			Message:  "domain policy file must be a JSON array",
			Cause:    err,
		}
	}

	dp := &model.DomainPolicy{
		Name:    domain,
		Score:   entry.Score,
		Source:  confPath,
		Intents: make(map[string][]*model.Policy),
	}

	for i, item := range items {
		policy, err := l.decodePolicy(s, item, report)
		if err != nil {
			verr := &ValidationError{Product: product, Domain: domain, Index: i, Message: "invalid policy", Cause: err}
			if l.config.Strict {
				return nil, verr
			}
			report.Skipped++
			report.warn("%v", verr)
			l.logger.Warn("Skipping invalid policy", "path", confPath, "index", i, "error", err)
			continue
		}
		intent := policy.Trigger.Intent
		dp.Intents[intent] = append(dp.Intents[intent], policy)
	}

	return dp, nil
}

type policyJSON struct {
	Trigger struct {
		Intent string   `json:"intent"`
		Slots  []string `json:"slots"`
		State  string   `json:"state"`
	} `json:"trigger"`
	Params []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Value    string `json:"value"`
		Required bool   `json:"required"`
		Default  string `json:"default"`
	} `json:"params"`
	Output []struct {
		Assertion []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"assertion"`
		Session struct {
			State   string       `json:"state"`
			Context model.KVList `json:"context"`
		} `json:"session"`
		Meta   model.KVList `json:"meta"`
		Result []struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
			Extra string          `json:"extra"`
		} `json:"result"`
	} `json:"output"`
}

var knownParamTypes = map[model.ParamType]bool{
	model.ParamSlotVal:        true,
	model.ParamSlotValOri:     true,
	model.ParamQUIntent:       true,
	model.ParamSessionState:   true,
	model.ParamSessionContext: true,
	model.ParamConstVal:       true,
	model.ParamRequestParam:   true,
	model.ParamFuncVal:        true,
}

var knownAssertionTypes = map[model.AssertionType]bool{
	model.AssertNotEmpty: true,
	model.AssertEmpty:    true,
	model.AssertIn:       true,
	model.AssertNotIn:    true,
	model.AssertEq:       true,
	model.AssertGt:       true,
	model.AssertGe:       true,
}

// decodePolicy validates and converts one policy element. Problems that
// only affect runtime behavior, such as unknown types or malformed
// templates, are reported as warnings and do not reject the policy.
func (l *Loader) decodePolicy(s *schemas, raw json.RawMessage, report *Report) (*model.Policy, error) {
	if err := validateInstance(s.policy, raw); err != nil {
		return nil, err
	}

	var pj policyJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return nil, err
	}

	p := &model.Policy{
		Trigger: model.Trigger{
			Intent: pj.Trigger.Intent,
			Slots:  pj.Trigger.Slots,
			State:  pj.Trigger.State,
		},
	}
	where := fmt.Sprintf("intent %q", p.Trigger.Intent)

	for _, pp := range pj.Params {
		param := model.Param{
			Name:     pp.Name,
			Type:     model.ParamType(pp.Type),
			Value:    pp.Value,
			Required: pp.Required,
			Default:  pp.Default,
		}
		if !knownParamTypes[param.Type] {
			report.warn("%s: param %q has unknown type %q", where, param.Name, param.Type)
		}
		p.Params = append(p.Params, param)
	}

	for oi, po := range pj.Output {
		out := model.Output{
			Meta:    po.Meta,
			Session: model.Session{State: po.Session.State, Context: po.Session.Context},
		}
		for _, pa := range po.Assertion {
			a := model.Assertion{Type: model.AssertionType(pa.Type), Value: pa.Value}
			if !knownAssertionTypes[a.Type] {
				report.warn("%s: output[%d] has unknown assertion type %q", where, oi, a.Type)
			}
			checkTemplate(report, where, a.Value)
			out.Assertions = append(out.Assertions, a)
		}
		for _, kv := range out.Meta {
			checkTemplate(report, where, kv.Key)
			checkTemplate(report, where, kv.Value)
		}

		for ri, pr := range po.Result {
			item := model.ResultItem{Type: pr.Type}
			if err := decodeResultValue(pr.Value, &item.Values); err != nil {
				return nil, fmt.Errorf("output[%d].result[%d]: %w", oi, ri, err)
			}
			if len(item.Values) == 0 {
				report.warn("%s: output[%d].result[%d] has no values and will never render", where, oi, ri)
			}
			for _, v := range item.Values {
				checkTemplate(report, where, v)
			}
			if pr.Extra != "" {
				fields, dropped, err := model.ParseExtra(pr.Extra)
				if err != nil {
					report.warn("%s: output[%d].result[%d] extra ignored: %v", where, oi, ri, err)
					l.logger.Warn("Failed to parse result extra", "intent", p.Trigger.Intent, "error", err)
				}
				for _, key := range dropped {
					report.warn("%s: output[%d].result[%d] unsupported extra key %q", where, oi, ri, key)
					l.logger.Warn("Unsupported extra key", "intent", p.Trigger.Intent, "key", key)
				}
				item.Extra = fields
			}
			out.Results = append(out.Results, item)
		}
		p.Outputs = append(p.Outputs, out)
	}

	return p, nil
}

func decodeResultValue(raw json.RawMessage, out *[]string) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		*out = []string{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("value must be a string or an array of strings")
	}
	*out = list
	return nil
}

func checkTemplate(report *Report, where, s string) {
	if _, err := template.Names(s); err != nil {
		report.warn("%s: %v", where, err)
	}
}

// readFile reads a configuration file after size and encoding checks.
func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		if os.IsPermission(err) {
			return nil, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}

	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}

	if info.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), l.config.MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}

	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	return data, nil
}

func syntaxOffset(err error) int64 {
	var serr *json.SyntaxError
	if errors.As(err, &serr) {
		return serr.Offset
	}
	return 0
}
