package autostart

import (
	"bytes"
	"filemirror/internal/util"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const unitName = "filemirror.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=filemirror remote storage mirror
After=network-online.target
Wants=network-online.target

[Service]
ExecStart="{{.ExecPath}}" watch
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

type LinuxAutoStarter struct{}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, unitName), nil
}

func renderUnit(execPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, map[string]string{"ExecPath": execPath}); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}

	return buf.Bytes(), nil
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	unit, err := renderUnit(execPath)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, bytes.NewReader(unit), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	return systemctl(
		[]string{"daemon-reload"},
		[]string{"enable", "--now", unitName},
	)
}

func (l *LinuxAutoStarter) Uninstall() error {
	// the unit may already be stopped or disabled
	_ = systemctl([]string{"disable", "--now", unitName})

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}

	return systemctl([]string{"daemon-reload"})
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	return util.IsRegularFile(path), nil
}

func systemctl(calls ...[]string) error {
	for _, args := range calls {
		cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
		}
	}

	return nil
}
