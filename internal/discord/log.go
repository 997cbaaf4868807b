package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/pkg/logger"
)

var routeLogsOnce sync.Once

// routeLibraryLogs sends discordgo's package-level log output to log. The
// hook is global, so only the first gateway's logger is installed.
func routeLibraryLogs(log *logger.Logger) {
	routeLogsOnce.Do(func() {
		lib := log.Named("discordgo")
		discordgo.Logger = func(level, _ int, format string, a ...interface{}) {
			msg := fmt.Sprintf(format, a...)
			switch level {
			case discordgo.LogError:
				lib.Error(msg)
			case discordgo.LogWarning:
				lib.Warn(msg)
			case discordgo.LogInformational:
				lib.Debug(msg)
			default:
				lib.Debug(msg, zap.Int("level", level))
			}
		}
	})
}
