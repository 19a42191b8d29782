package config

import "testing"

func TestParseRedisAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"redis://localhost:6379", "localhost:6379"},
		{"rediss://redis.example.com:6380/", "redis.example.com:6380"},
		{"localhost", "localhost:6379"},
		{"10.0.0.5:6390", "10.0.0.5:6390"},
	}
	for _, tt := range tests {
		if got := parseRedisAddr(tt.in); got != tt.want {
			t.Errorf("parseRedisAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("WB_TEST_ORIGINS", "http://a.example, http://b.example,")
	got := getEnvAsSlice("WB_TEST_ORIGINS", nil)
	if len(got) != 2 || got[0] != "http://a.example" || got[1] != "http://b.example" {
		t.Fatalf("unexpected slice: %v", got)
	}
}

func TestGetEnvAsSliceDefault(t *testing.T) {
	def := []string{"x"}
	got := getEnvAsSlice("WB_TEST_MISSING", def)
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected default, got %v", got)
	}
}
