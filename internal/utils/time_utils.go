package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseStringTime 解析形如 "10s"、"5m"、"2h"、"1d" 的时间字符串，空字符串表示 0
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "" || timeString == "0" {
		return 0, nil
	}
	for _, u := range timeUnits {
		cutString, found := strings.CutSuffix(timeString, u.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time string %q: %w", timeString, err)
		}
		if number < 0 {
			return 0, fmt.Errorf("invalid time string %q: negative duration", timeString)
		}
		return time.Duration(number) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid time format: %s", timeString)
}
