// Package telegram delivers scan alerts through the Telegram Bot API and lets the
// chat start and stop scans.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/scan"
)

// Controller is the scan lifecycle the bot commands drive.
type Controller interface {
	Run(ctx context.Context, mode scan.Mode) error
	Stop() bool
	Running() bool
	Status() scan.Status
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram delivery and commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	clock          clock.Clock
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase, clock.NewReal())
	c.bot = bot
	return c, nil
}

func newClient(s sender, chatID int64, maxRetries int, retryDelayBase time.Duration, clk clock.Clock) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		sender:         s,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		clock:          clk,
	}
}

// Deliver sends one alert to the configured chat.
func (c *Client) Deliver(ctx context.Context, a scan.Alert) error {
	return c.sendHTML(ctx, FormatAlert(a))
}

// SendError reports a failed scan run.
func (c *Client) SendError(ctx context.Context, runErr error) error {
	return c.sendHTML(ctx, "⚠️ <b>Scan error</b>\n<code>"+html.EscapeString(runErr.Error())+"</code>")
}

// ListenForCommands polls for updates and handles bot commands from the configured
// chat. It returns immediately; polling stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, ctrl Controller) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() {
					continue
				}
				if msg.Chat == nil || msg.Chat.ID != c.chatID {
					logger.Warn("Ignoring /%s from unknown chat", msg.Command())
					continue
				}
				if reply := c.handleCommand(ctx, msg.Command(), ctrl); reply != "" {
					if err := c.sendHTML(ctx, reply); err != nil {
						logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
					}
				}
			}
		}
	}()
}

// handleCommand executes a command and returns the reply text.
func (c *Client) handleCommand(ctx context.Context, command string, ctrl Controller) string {
	switch command {
	case "ping":
		return "Pong"
	case "patterns", "decorations":
		mode, err := scan.ParseMode(command)
		if err != nil {
			return html.EscapeString(err.Error())
		}
		if ctrl.Running() {
			return "A scan is already running, /stop it first"
		}
		go func() {
			err := ctrl.Run(ctx, mode)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, scan.ErrAlreadyRunning) {
				logger.Info("Ignoring /%s, a scan is already running", command)
				return
			}
			logger.Error("Scan failed: %v", err)
			if sendErr := c.SendError(ctx, err); sendErr != nil {
				logger.Warn("Failed to send scan error to Telegram: %v", sendErr)
			}
		}()
		return "🟩 Searching " + string(mode) + "..."
	case "stop":
		if ctrl.Stop() {
			return "Stopping the scan"
		}
		return "No scan is running"
	case "status":
		return formatStatus(ctrl.Status())
	case "start", "help":
		return "Commands: /patterns, /decorations, /stop, /status, /ping"
	}
	return ""
}

// sendHTML sends an HTML message with linear-backoff retry.
func (c *Client) sendHTML(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.sender.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == c.maxRetries-1 {
			break
		}
		if err := c.clock.Sleep(ctx, c.retryDelayBase*time.Duration(i+1)); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}
