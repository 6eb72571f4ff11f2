package scheduler

import (
	"testing"

	"github.com/glucoquest/glucoquest-api/internal/config"
	"github.com/glucoquest/glucoquest-api/pkg/logger"
)

func TestBuildCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		time    string
		want    string
		wantErr bool
	}{
		{
			name:    "daily at 3:30am",
			time:    "03:30",
			want:    "30 3 * * *",
			wantErr: false,
		},
		{
			name:    "midnight",
			time:    "00:00",
			want:    "0 0 * * *",
			wantErr: false,
		},
		{
			name:    "daily at 14:05",
			time:    "14:05",
			want:    "5 14 * * *",
			wantErr: false,
		},
		{
			name:    "invalid format no colon",
			time:    "0330",
			want:    "",
			wantErr: true,
		},
		{
			name:    "invalid hour",
			time:    "25:00",
			want:    "",
			wantErr: true,
		},
		{
			name:    "invalid minute",
			time:    "03:60",
			want:    "",
			wantErr: true,
		},
		{
			name:    "non-numeric",
			time:    "ab:cd",
			want:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildCronExpression(tt.time)

			if (err != nil) != tt.wantErr {
				t.Errorf("buildCronExpression() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != tt.want {
				t.Errorf("buildCronExpression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStart_Disabled(t *testing.T) {
	cfg := &config.SchedulerConfig{Enabled: false}
	s := NewService(cfg, nil, logger.New("debug", "text", "stdout"))

	if err := s.Start(); err != nil {
		t.Fatalf("Start() with disabled scheduler failed: %v", err)
	}
	if s.cron != nil {
		t.Error("Expected no cron instance when disabled")
	}

	// Stop on a never-started scheduler is a no-op
	s.Stop()
}

func TestStart_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SchedulerConfig
	}{
		{
			name: "bad timezone",
			cfg:  config.SchedulerConfig{Enabled: true, RetroactiveTime: "03:30", Timezone: "Mars/Olympus"},
		},
		{
			name: "bad time",
			cfg:  config.SchedulerConfig{Enabled: true, RetroactiveTime: "half past three", Timezone: "UTC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&tt.cfg, nil, logger.New("debug", "text", "stdout"))
			if err := s.Start(); err == nil {
				t.Fatal("Expected Start() to fail")
			}
		})
	}
}

func TestStartAndStop(t *testing.T) {
	cfg := &config.SchedulerConfig{Enabled: true, RetroactiveTime: "03:30", Timezone: "UTC"}
	s := NewService(cfg, nil, logger.New("debug", "text", "stdout"))

	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if s.cron == nil {
		t.Fatal("Expected cron instance after Start()")
	}
	if len(s.cron.Entries()) != 1 {
		t.Errorf("Expected 1 scheduled job, got %d", len(s.cron.Entries()))
	}

	s.Stop()
}
