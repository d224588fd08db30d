package accountstatus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coinvault.com/pkg/breaker"
	"coinvault.com/pkg/logger"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

const breakerName = "account-status"

// Client 远端账户状态服务，运维封禁会员时同步过去
type Client struct {
	baseURL  string
	http     *http.Client
	breakers *breaker.Manager
}

func NewClient(baseURL string, timeout time.Duration, breakers *breaker.Manager) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		breakers: breakers,
	}
}

type toggleRequest struct {
	UID   string `json:"uid"`
	State string `json:"state"`
}

// Disable 同步封禁/解封
func (c *Client) Disable(ctx context.Context, uid string, disabled bool) error {
	state := "active"
	if disabled {
		state = "disabled"
	}
	body, err := json.Marshal(toggleRequest{UID: uid, State: state})
	if err != nil {
		return err
	}

	return c.breakers.Do(breakerName, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/users/state", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if rid := logger.RequestID(ctx); rid != "" {
			req.Header.Set("X-Request-Id", rid)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("account status: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// ToggleQuietly 调用方不关心结果，失败只记日志
func (c *Client) ToggleQuietly(ctx context.Context, uid string, disabled bool) {
	if err := c.Disable(ctx, uid, disabled); err != nil {
		logger.Warn(ctx, "account status toggle ignored",
			zap.String("uid", uid), zap.Bool("disabled", disabled), zap.Error(err))
	}
}
