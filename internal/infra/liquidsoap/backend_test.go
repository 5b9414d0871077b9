package liquidsoap_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/edumarques81/radioqueue/internal/infra/liquidsoap"
	"github.com/edumarques81/radioqueue/internal/infra/telnet"
)

type recordingExecutor struct {
	commands []string
	reply    string
	err      error
}

func (r *recordingExecutor) Execute(ctx context.Context, command string) (string, error) {
	r.commands = append(r.commands, command)
	return r.reply, r.err
}

func TestBackendCommands(t *testing.T) {
	tests := []struct {
		name     string
		commands liquidsoap.Commands
		run      func(b *liquidsoap.Backend) error
		want     string
	}{
		{
			name: "enqueue with defaults",
			run: func(b *liquidsoap.Backend) error {
				_, err := b.Enqueue(context.Background(), "/music/a b.mp3")
				return err
			},
			want: "request.push /music/a b.mp3",
		},
		{
			name:     "skip with custom command",
			commands: liquidsoap.Commands{Skip: "rq.skip"},
			run: func(b *liquidsoap.Backend) error {
				_, err := b.Skip(context.Background())
				return err
			},
			want: "rq.skip",
		},
		{
			name: "now playing",
			run: func(b *liquidsoap.Backend) error {
				_, err := b.NowPlaying(context.Background())
				return err
			},
			want: "request.metadata",
		},
		{
			name: "ping",
			run: func(b *liquidsoap.Backend) error {
				return b.Ping(context.Background())
			},
			want: "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{reply: "ok"}
			b := liquidsoap.NewBackend(exec, tt.commands)

			if err := tt.run(b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(exec.commands) != 1 {
				t.Fatalf("expected exactly one command, got %q", exec.commands)
			}
			if exec.commands[0] != tt.want {
				t.Errorf("command = %q, want %q", exec.commands[0], tt.want)
			}
		})
	}
}

func TestBackendEnqueueEmptyReference(t *testing.T) {
	exec := &recordingExecutor{}
	b := liquidsoap.NewBackend(exec, liquidsoap.Commands{})

	if _, err := b.Enqueue(context.Background(), ""); err == nil {
		t.Error("expected error for empty reference")
	}
	if len(exec.commands) != 0 {
		t.Errorf("no command should be sent, got %q", exec.commands)
	}
}

func TestBackendPropagatesErrors(t *testing.T) {
	want := &telnet.TimeoutError{Addr: "liquidsoap:1234", Op: "read response", Timeout: time.Second}
	b := liquidsoap.NewBackend(&recordingExecutor{err: want}, liquidsoap.Commands{})

	_, err := b.Skip(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestBackendPingRejectsErrorReply(t *testing.T) {
	b := liquidsoap.NewBackend(&recordingExecutor{reply: "ERROR: unknown command"}, liquidsoap.Commands{})
	if err := b.Ping(context.Background()); err == nil {
		t.Error("Ping should fail on an ERROR reply")
	}
}

func TestDialAgainstTelnetStub(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		if line == "request.metadata\n" {
			conn.Write([]byte("--- 1 ---\ntitle=\"Song\"\nartist=\"Band\"\nEND\n"))
		}
		r.ReadString('\n')
	}()

	b := liquidsoap.Dial(telnet.Config{
		Host:       "127.0.0.1",
		Port:       ln.Addr().(*net.TCPAddr).Port,
		Terminator: "END",
		Timeout:    time.Second,
	}, liquidsoap.Commands{})

	out, err := b.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying failed: %v", err)
	}
	want := "--- 1 ---\ntitle=\"Song\"\nartist=\"Band\""
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}
