// Package line implements messaging.Messenger on the LINE Messaging API.
package line

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"babybot/pkg/failure"
	"babybot/pkg/messaging"
)

const invalidReplyToken = "Invalid reply token"

// Options configures a Client. Endpoint and DataEndpoint override the API
// hosts and exist for tests.
type Options struct {
	AccessToken    string
	RequestTimeout time.Duration
	Endpoint       string
	DataEndpoint   string
}

// Client talks to the LINE Messaging API and its content host.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
	log  *slog.Logger
}

// New builds a Client. The request timeout bounds every API call. Content
// downloads only wait that long for response headers; the body streams for
// as long as the caller's context allows.
func New(opts Options, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{Timeout: opts.RequestTimeout}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.RequestTimeout
	blobHTTPClient := &http.Client{Transport: transport}

	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(opts.Endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(opts.AccessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}

	blobOpts := []messaging_api.MessagingApiBlobAPIOption{messaging_api.WithBlobHTTPClient(blobHTTPClient)}
	if opts.DataEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(opts.DataEndpoint))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(opts.AccessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging blob client: %w", err)
	}

	return &Client{api: api, blob: blob, log: log.With("component", "messaging.line")}, nil
}

func (c *Client) Reply(ctx context.Context, reply messaging.Reply) error {
	messages := make([]messaging_api.MessageInterface, 0, len(reply.Texts))
	for _, text := range reply.Texts {
		messages = append(messages, messaging_api.TextMessage{Text: text})
	}

	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: reply.Token,
		Messages:   messages,
	})
	if err != nil {
		if strings.Contains(err.Error(), invalidReplyToken) {
			return failure.Wrap(failure.ReplyTokenExpired, err, "platform rejected reply token")
		}
		return failure.Wrap(failure.UpstreamInvocationFailed, err, "reply message")
	}

	c.log.Debug("Reply sent", "messages", len(messages))
	return nil
}

func (c *Client) Profile(ctx context.Context, userID string) (messaging.Profile, error) {
	profile, err := c.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return messaging.Profile{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "get profile")
	}

	return messaging.Profile{
		DisplayName:   profile.DisplayName,
		StatusMessage: profile.StatusMessage,
		PictureURL:    profile.PictureUrl,
	}, nil
}

func (c *Client) Content(ctx context.Context, messageID string) (messaging.Content, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return messaging.Content{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "get message content")
	}

	return messaging.Content{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Length:      resp.ContentLength,
	}, nil
}

func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	if _, err := c.api.WithContext(ctx).LeaveGroup(groupID); err != nil {
		return failure.Wrap(failure.UpstreamInvocationFailed, err, "leave group")
	}
	return nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	if _, err := c.api.WithContext(ctx).LeaveRoom(roomID); err != nil {
		return failure.Wrap(failure.UpstreamInvocationFailed, err, "leave room")
	}
	return nil
}
