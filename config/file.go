package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LoadFile reads a .conf file of "key = value" lines. Blank lines and lines
// starting with # are skipped, and a value may be quoted. A missing file
// yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		values[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return values, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyFileConfig sets every Config field whose conf tag names a key in
// values. Unknown keys are ignored.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	fields := confFields(reflect.ValueOf(cfg).Elem(), nil)
	for key, value := range values {
		field, ok := fields[key]
		if !ok {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// confFields maps conf tags to the settable fields of v, descending into
// nested section structs.
func confFields(v reflect.Value, out map[string]reflect.Value) map[string]reflect.Value {
	if out == nil {
		out = make(map[string]reflect.Value)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		if tag := t.Field(i).Tag.Get("conf"); tag != "" {
			out[tag] = f
		} else if f.Kind() == reflect.Struct {
			confFields(f, out)
		}
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(f reflect.Value, value string) error {
	switch {
	case f.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
	case f.Kind() == reflect.String:
		f.SetString(value)
	case f.Kind() == reflect.Bool:
		f.SetBool(parseBool(value))
	case f.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		f.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// WriteDefaultConfig writes a default wallet configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Klingnet Wallet Configuration
#
# Chain parameters (fee rules, block time) are fixed per network and
# cannot be changed here.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.klingnet-wallet)
# datadir = ~/.klingnet-wallet

# ============================================================================
# Wallet
# ============================================================================

# Container file, relative to <datadir>/<network>/wallets
wallet.file = wallet.kgw

# ============================================================================
# Daemon
# ============================================================================

daemon.host = 127.0.0.1
daemon.port = ` + strconv.Itoa(ParamsFor(network).DaemonPort) + `
daemon.ssl = false
daemon.timeout = 10s

# Sync requests per second (0 = unlimited)
daemon.rate = 20

# ============================================================================
# Synchronizer
# ============================================================================

sync.threads = 4
sync.interval = 5s

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
