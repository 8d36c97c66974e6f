package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type ledgerRow struct {
	CollegeID      string `json:"center_id"`
	Capacity       int    `json:"capacity"`
	AllocatedCount int    `json:"allocated_count"`
}

type client struct {
	http  *http.Client
	base  string
	token string
}

func main() {
	var (
		base      string
		email     string
		password  string
		centerID  string
		batchID   string
		programID string
		capacity  int
		requests  int
		parallel  int
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&email, "email", "admin@example.com", "Admin email")
	flag.StringVar(&password, "password", "", "Admin password")
	flag.StringVar(&centerID, "center", "", "College id of the exam center")
	flag.StringVar(&batchID, "batch", "", "Batch id")
	flag.StringVar(&programID, "program", "", "Program id")
	flag.IntVar(&capacity, "capacity", 25, "Capacity to declare before the run")
	flag.IntVar(&requests, "requests", 100, "Number of single-seat allocations to fire")
	flag.IntVar(&parallel, "parallel", 20, "Concurrent requests in flight")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if centerID == "" || batchID == "" || programID == "" {
		log.Fatal("center, batch and program are required")
	}

	c := &client{http: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/")}
	if err := c.login(email, password); err != nil {
		log.Fatalf("login failed: %v", err)
	}

	key := map[string]interface{}{"center_id": centerID, "batch_id": batchID, "program_id": programID}
	before, err := c.row(batchID, programID, centerID)
	if err != nil {
		log.Fatalf("read ledger: %v", err)
	}
	if before != nil && before.AllocatedCount > 0 {
		if _, err := c.call(http.MethodPost, "/centers/release", withCount(key, before.AllocatedCount)); err != nil {
			log.Fatalf("reset ledger: %v", err)
		}
	}
	declare := withCount(key, 0)
	delete(declare, "count")
	declare["capacity"] = capacity
	if _, err := c.call(http.MethodPut, "/centers/capacity", declare); err != nil {
		log.Fatalf("declare capacity: %v", err)
	}

	var accepted, rejected, failed int64
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(parallel)
	start := time.Now()
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			status, err := c.call(http.MethodPost, "/centers/allocate", withCount(key, 1))
			switch {
			case err == nil:
				atomic.AddInt64(&accepted, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	after, err := c.row(batchID, programID, centerID)
	if err != nil || after == nil {
		log.Fatalf("read ledger after run: %v", err)
	}

	fmt.Printf("requests=%d accepted=%d rejected=%d failed=%d elapsed=%s\n", requests, accepted, rejected, failed, elapsed)
	fmt.Printf("capacity=%d allocated_count=%d\n", after.Capacity, after.AllocatedCount)

	want := min(requests, capacity)
	if failed == 0 && int(accepted) != want {
		fmt.Printf("expected %d accepted allocations\n", want)
		os.Exit(1)
	}
	if after.AllocatedCount != int(accepted) || after.AllocatedCount > after.Capacity {
		fmt.Println("ledger drifted from accepted allocations")
		os.Exit(1)
	}
}

func withCount(key map[string]interface{}, count int) map[string]interface{} {
	body := make(map[string]interface{}, len(key)+1)
	for k, v := range key {
		body[k] = v
	}
	body["count"] = count
	return body
}

func (c *client) login(email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	env, err := decode(resp)
	if err != nil {
		return err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("no access token in login response")
	}
	c.token = out.AccessToken
	return nil
}

func (c *client) row(batchID, programID, centerID string) (*ledgerRow, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/centers?batch_id=%s&program_id=%s", c.base, batchID, programID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	env, err := decode(resp)
	if err != nil {
		return nil, err
	}
	var rows []ledgerRow
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].CollegeID == centerID {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func (c *client) call(method, path string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, err = decode(resp)
	return resp.StatusCode, err
}

func decode(resp *http.Response) (*envelope, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode %d response: %w", resp.StatusCode, err)
		}
	}
	if resp.StatusCode >= 300 {
		if env.Error != nil {
			return &env, fmt.Errorf("%d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return &env, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return &env, nil
}
