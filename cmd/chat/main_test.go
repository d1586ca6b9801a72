package main

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    http.Header
		wantErr bool
	}{
		{
			name:  "Empty",
			pairs: nil,
			want:  http.Header{},
		},
		{
			name:  "Single",
			pairs: []string{"Authorization=Bearer abc"},
			want:  http.Header{"Authorization": {"Bearer abc"}},
		},
		{
			name:  "Repeated key and value with equals",
			pairs: []string{"x-tag=a", "X-Tag = b=c"},
			want:  http.Header{"X-Tag": {"a", "b=c"}},
		},
		{
			name:    "Missing equals",
			pairs:   []string{"Authorization"},
			wantErr: true,
		},
		{
			name:    "Missing key",
			pairs:   []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeaders(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseHeaders() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	t.Setenv("CHATRELAY_URL", "http://relay.test/chat")
	t.Setenv("CHATRELAY_LOG_FILE", "/tmp/chat.log")

	v := viper.New()
	cmd := newRootCmd(v)
	if err := cmd.Flags().Set("system", "Be brief"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("header", "X-Client=test"); err != nil {
		t.Fatal(err)
	}

	opts, err := loadOptions(v)
	if err != nil {
		t.Fatalf("loadOptions() error = %v", err)
	}
	if opts.URL != "http://relay.test/chat" {
		t.Errorf("URL = %q, want env value", opts.URL)
	}
	if opts.LogFile != "/tmp/chat.log" {
		t.Errorf("LogFile = %q, want env value", opts.LogFile)
	}
	if opts.System != "Be brief" {
		t.Errorf("System = %q", opts.System)
	}
	if opts.Headers.Get("X-Client") != "test" {
		t.Errorf("Headers = %v", opts.Headers)
	}
}

func TestLoadOptionsDefaults(t *testing.T) {
	v := viper.New()
	newRootCmd(v)
	opts, err := loadOptions(v)
	if err != nil {
		t.Fatalf("loadOptions() error = %v", err)
	}
	if opts.URL != defaultRelayURL {
		t.Errorf("URL = %q, want %q", opts.URL, defaultRelayURL)
	}
}
