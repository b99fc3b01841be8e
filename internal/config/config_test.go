package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv hides variables from the developer's shell
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MPD_HOST", "MPD_PORT",
		"MPDOUTPUTS_HOST", "MPDOUTPUTS_PORT", "MPDOUTPUTS_PASSWORD", "MPDOUTPUTS_TIMEOUT",
		"MPDOUTPUTS_LOG_LEVEL", "MPDOUTPUTS_SERVE_ADDR", "MPDOUTPUTS_SERVE_METRICS_ADDR",
		"MPDOUTPUTS_SERVE_PASSWORD", "MPDOUTPUTS_SERVE_ADVERTISE", "MPDOUTPUTS_SERVE_NAME",
		"MPDOUTPUTS_DISCOVERY_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mpdoutputs.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.Host != def.Host || cfg.Port != def.Port || cfg.Timeout != def.Timeout || cfg.LogLevel != def.LogLevel {
		t.Errorf("LoadConfig() = %+v, want defaults %+v", cfg, def)
	}
	if cfg.Serve.Addr != def.Serve.Addr || len(cfg.Serve.Outputs) != len(def.Serve.Outputs) {
		t.Errorf("Serve = %+v, want %+v", cfg.Serve, def.Serve)
	}
	if cfg.Discovery.Timeout != 3*time.Second {
		t.Errorf("Discovery.Timeout = %v, want 3s", cfg.Discovery.Timeout)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
host: music.local
port: 6601
timeout: 2s
log_level: debug
serve:
  addr: 127.0.0.1:6700
  metrics_addr: 127.0.0.1:9100
  outputs:
    - name: Kitchen
      plugin: alsa
      enabled: true
    - name: Stream
      plugin: httpd
      attributes:
        port: "8000"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != "music.local" || cfg.Port != 6601 || cfg.Timeout != 2*time.Second || cfg.LogLevel != "debug" {
		t.Errorf("LoadConfig() = %+v", cfg)
	}
	if cfg.Serve.Addr != "127.0.0.1:6700" || cfg.Serve.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("Serve = %+v", cfg.Serve)
	}
	if len(cfg.Serve.Outputs) != 2 {
		t.Fatalf("Serve.Outputs = %+v, want 2 outputs", cfg.Serve.Outputs)
	}
	stream := cfg.ServeOutput("Stream")
	if stream == nil || stream.Enabled || stream.Attributes["port"] != "8000" {
		t.Errorf("ServeOutput(Stream) = %+v", stream)
	}
	if cfg.ServeOutput("Speakers") != nil {
		t.Error("default outputs merged into configured ones")
	}
}

func TestLoadConfigEmptyOutputs(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, "serve:\n  outputs: []\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Serve.Outputs) != 0 {
		t.Errorf("Serve.Outputs = %+v, want none", cfg.Serve.Outputs)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MPD_HOST", "s3cret@music.local")
	t.Setenv("MPD_PORT", "6602")
	t.Setenv("MPDOUTPUTS_TIMEOUT", "3s")
	t.Setenv("MPDOUTPUTS_SERVE_ADDR", "0.0.0.0:6800")

	cfg, err := LoadConfig(writeConfig(t, "host: other.local\nport: 6601\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != "music.local" || cfg.Password != "s3cret" || cfg.Port != 6602 {
		t.Errorf("host/password/port = %q/%q/%d", cfg.Host, cfg.Password, cfg.Port)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Timeout)
	}
	if cfg.Serve.Addr != "0.0.0.0:6800" {
		t.Errorf("Serve.Addr = %q", cfg.Serve.Addr)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "port out of range", content: "port: 70000\n", wantErr: "Port"},
		{name: "unknown log level", content: "log_level: loud\n", wantErr: "LogLevel"},
		{name: "bad serve addr", content: "serve:\n  addr: nowhere\n", wantErr: "Serve.Addr"},
		{name: "unnamed output", content: "serve:\n  outputs:\n    - plugin: alsa\n", wantErr: "Name"},
		{name: "duplicate output", content: "serve:\n  outputs:\n    - name: A\n    - name: A\n", wantErr: "duplicate output name"},
		{name: "bad host", content: "host: \"not a host\"\n", wantErr: "host"},
		{name: "malformed yaml", content: "port: [\n", wantErr: "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.Host = "/run/mpd/socket"
	cfg.Timeout = 7 * time.Second
	cfg.Serve.Outputs[1].Attributes = map[string]string{"dop": "0"}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Host != cfg.Host || loaded.Timeout != cfg.Timeout {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
	if hp := loaded.ServeOutput("Headphones"); hp == nil || hp.Attributes["dop"] != "0" {
		t.Errorf("ServeOutput(Headphones) = %+v", hp)
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 6600, "localhost:6600"},
		{"::1", 6601, "[::1]:6601"},
		{"/run/mpd/socket", 6600, "/run/mpd/socket"},
		{"@mpd", 6600, "@mpd"},
	}

	for _, tt := range tests {
		cfg := &Config{Host: tt.host, Port: tt.port}
		if got := cfg.Address(); got != tt.want {
			t.Errorf("Address() for %s:%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestSplitHostPassword(t *testing.T) {
	tests := []struct {
		host, password         string
		wantHost, wantPassword string
	}{
		{host: "localhost", wantHost: "localhost"},
		{host: "pw@localhost", wantHost: "localhost", wantPassword: "pw"},
		{host: "p@ss@localhost", wantHost: "localhost", wantPassword: "p@ss"},
		{host: "pw@/run/mpd/socket", wantHost: "/run/mpd/socket", wantPassword: "pw"},
		{host: "/run/mpd@1/socket", wantHost: "/run/mpd@1/socket"},
		{host: "@abstract", wantHost: "@abstract"},
		{host: "pw@localhost", password: "explicit", wantHost: "localhost", wantPassword: "explicit"},
	}

	for _, tt := range tests {
		cfg := &Config{Host: tt.host, Password: tt.password}
		cfg.splitHostPassword()
		if cfg.Host != tt.wantHost || cfg.Password != tt.wantPassword {
			t.Errorf("splitHostPassword(%q) = %q, %q; want %q, %q", tt.host, cfg.Host, cfg.Password, tt.wantHost, tt.wantPassword)
		}
	}
}

func TestSetHost(t *testing.T) {
	cfg := &Config{Host: "localhost", Password: "old"}

	cfg.SetHost("music.local")
	if cfg.Host != "music.local" || cfg.Password != "old" {
		t.Errorf("SetHost(music.local) = %q, %q", cfg.Host, cfg.Password)
	}

	cfg.SetHost("new@music.local")
	if cfg.Host != "music.local" || cfg.Password != "new" {
		t.Errorf("SetHost(new@music.local) = %q, %q", cfg.Host, cfg.Password)
	}
}
