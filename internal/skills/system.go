package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultStep is the volume/brightness step used when the user gives no
// number.
const defaultStep = 10

// sleepReply is spoken before the assistant drops back to idle; the state
// change itself is the pipeline's job.
const sleepReply = "Going to sleep mode now. Say the wake word to wake me up."

// System executes system_control actions: audio volume through pactl,
// screen brightness through brightnessctl, battery status from sysfs, and
// window management through xdotool.
type System struct {
	runner Runner
	log    *slog.Logger

	// batteryGlob is overridable in tests.
	batteryGlob string
}

// NewSystem builds the system-control skill.
func NewSystem(runner Runner) *System {
	return &System{
		runner:      runner,
		log:         slog.Default().With("component", "skills.system"),
		batteryGlob: "/sys/class/power_supply/BAT*",
	}
}

// Do performs one system action and returns the sentence to speak.
func (s *System) Do(ctx context.Context, action, value string) (string, error) {
	step := parseStep(value)

	switch action {
	case "volume_up":
		cur, err := s.currentVolume(ctx)
		if err != nil {
			s.log.Warn("volume query failed", "err", err)
			return "I had trouble adjusting the volume.", nil
		}
		target := min(100, cur+step)
		if err := s.setVolume(ctx, target); err != nil {
			return "I had trouble adjusting the volume.", nil
		}
		return fmt.Sprintf("Volume increased by %d percent to %d percent.", step, target), nil

	case "volume_down":
		cur, err := s.currentVolume(ctx)
		if err != nil {
			s.log.Warn("volume query failed", "err", err)
			return "I had trouble adjusting the volume.", nil
		}
		target := max(0, cur-step)
		if err := s.setVolume(ctx, target); err != nil {
			return "I had trouble adjusting the volume.", nil
		}
		return fmt.Sprintf("Volume decreased by %d percent to %d percent.", step, target), nil

	case "set_volume":
		target, ok := parsePercent(value)
		if !ok {
			return "I need a valid number between 0 and 100 to set the volume.", nil
		}
		if err := s.setVolume(ctx, target); err != nil {
			return "I had trouble setting the volume.", nil
		}
		return fmt.Sprintf("Volume set to %d percent.", target), nil

	case "brightness_up", "brightness_down":
		cur, err := s.currentBrightness(ctx)
		if err != nil {
			s.log.Warn("brightness query failed", "err", err)
			return "Sorry, I couldn't adjust the screen brightness.", nil
		}
		target := min(100, cur+step)
		if action == "brightness_down" {
			target = max(0, cur-step)
		}
		if err := s.setBrightness(ctx, target); err != nil {
			return "Sorry, I couldn't adjust the screen brightness.", nil
		}
		if action == "brightness_up" {
			return fmt.Sprintf("Brightness increased by %d percent to %d percent.", step, target), nil
		}
		return fmt.Sprintf("Brightness decreased by %d percent to %d percent.", step, target), nil

	case "set_brightness":
		target, ok := parsePercent(value)
		if !ok {
			return "I need a valid number between 0 and 100 to set the brightness.", nil
		}
		if err := s.setBrightness(ctx, target); err != nil {
			return "Sorry, I couldn't set the screen brightness.", nil
		}
		return fmt.Sprintf("Screen brightness set to %d percent.", target), nil

	case "check_status":
		return s.checkStatus(ctx, value), nil

	case "minimize_window":
		if _, err := s.runner.Run(ctx, "xdotool", "getactivewindow", "windowminimize"); err != nil {
			return "I couldn't minimize the active window.", nil
		}
		return "Minimizing the active window.", nil

	case "maximize_window":
		if _, err := s.runner.Run(ctx, "xdotool", "key", "super+Up"); err != nil {
			return "I couldn't maximize the active window.", nil
		}
		return "Maximizing the active window.", nil

	case "close_window":
		if _, err := s.runner.Run(ctx, "xdotool", "getactivewindow", "windowclose"); err != nil {
			return "I couldn't close the active window.", nil
		}
		return "Closing the active window or application.", nil

	case "switch_app":
		if _, err := s.runner.Run(ctx, "xdotool", "key", "alt+Tab"); err != nil {
			return "I couldn't switch applications.", nil
		}
		return "Switching to the previous application.", nil

	case "sleep":
		return sleepReply, nil
	}

	return "I'm not sure how to perform that system action.", nil
}

func (s *System) checkStatus(ctx context.Context, target string) string {
	target = strings.ToLower(target)

	switch {
	case strings.Contains(target, "volume"):
		cur, err := s.currentVolume(ctx)
		if err != nil {
			return "I had trouble checking the volume."
		}
		return fmt.Sprintf("The current volume is %d percent.", cur)

	case strings.Contains(target, "brightness"):
		cur, err := s.currentBrightness(ctx)
		if err != nil {
			return "I had trouble checking the screen brightness."
		}
		return fmt.Sprintf("The current screen brightness is %d percent.", cur)

	case strings.Contains(target, "battery"):
		percent, charging, err := s.batteryStatus()
		if err != nil {
			return "I cannot detect the battery status on this device."
		}
		suffix := "and running on battery"
		if charging {
			suffix = "and is currently charging"
		}
		return fmt.Sprintf("The battery is at %d percent, %s.", percent, suffix)
	}

	return "I'm not sure what status you want me to check."
}

// currentVolume reads the default sink volume through pactl.
func (s *System) currentVolume(ctx context.Context) (int, error) {
	out, err := s.runner.Run(ctx, "pactl", "get-sink-volume", "@DEFAULT_SINK@")
	if err != nil {
		return 0, err
	}
	vol, ok := firstPercent(out)
	if !ok {
		return 0, fmt.Errorf("skills: no percentage in pactl output %q", out)
	}
	return vol, nil
}

func (s *System) setVolume(ctx context.Context, percent int) error {
	_, err := s.runner.Run(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", strconv.Itoa(percent)+"%")
	return err
}

// currentBrightness derives a percentage from brightnessctl's raw and
// maximum values.
func (s *System) currentBrightness(ctx context.Context) (int, error) {
	rawOut, err := s.runner.Run(ctx, "brightnessctl", "get")
	if err != nil {
		return 0, err
	}
	maxOut, err := s.runner.Run(ctx, "brightnessctl", "max")
	if err != nil {
		return 0, err
	}
	raw, err := strconv.Atoi(strings.TrimSpace(rawOut))
	if err != nil {
		return 0, err
	}
	maxRaw, err := strconv.Atoi(strings.TrimSpace(maxOut))
	if err != nil || maxRaw == 0 {
		return 0, fmt.Errorf("skills: bad brightnessctl max %q", maxOut)
	}
	return raw * 100 / maxRaw, nil
}

func (s *System) setBrightness(ctx context.Context, percent int) error {
	_, err := s.runner.Run(ctx, "brightnessctl", "set", strconv.Itoa(percent)+"%")
	return err
}

// batteryStatus reads the first battery under sysfs.
func (s *System) batteryStatus() (percent int, charging bool, err error) {
	dirs, err := filepath.Glob(s.batteryGlob)
	if err != nil || len(dirs) == 0 {
		return 0, false, fmt.Errorf("skills: no battery found")
	}

	capRaw, err := os.ReadFile(filepath.Join(dirs[0], "capacity"))
	if err != nil {
		return 0, false, err
	}
	percent, err = strconv.Atoi(strings.TrimSpace(string(capRaw)))
	if err != nil {
		return 0, false, err
	}

	statusRaw, err := os.ReadFile(filepath.Join(dirs[0], "status"))
	if err != nil {
		return percent, false, nil
	}
	status := strings.TrimSpace(string(statusRaw))
	return percent, status == "Charging" || status == "Full", nil
}

// parseStep turns a slot value into a clamped step size, falling back to the
// default when the value is not a number.
func parseStep(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultStep
	}
	return max(1, min(100, n))
}

// parsePercent parses an absolute percentage, clamped to [0, 100].
func parsePercent(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return max(0, min(100, n)), true
}

// firstPercent scans command output for the first "NN%" token.
func firstPercent(out string) (int, bool) {
	for _, field := range strings.Fields(out) {
		if !strings.HasSuffix(field, "%") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(field, "%"))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
