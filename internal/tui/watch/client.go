package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// StatusSnapshot mirrors GET /api/status.
type StatusSnapshot struct {
	Total     int                       `json:"total"`
	Done      int                       `json:"done"`
	Failed    int                       `json:"failed"`
	Pending   int                       `json:"pending"`
	Running   int                       `json:"running"`
	Directors map[string]DirectorCounts `json:"directors"`
	LastTask  *LastTask                 `json:"last_task"`
}

type DirectorCounts struct {
	Total  int `json:"total"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

type LastTask struct {
	AssignedTo string    `json:"assigned_to"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentTask mirrors one row of GET /api/recent.
type RecentTask struct {
	ID         int64     `json:"id"`
	AssignedTo string    `json:"assigned_to"`
	TaskType   string    `json:"task_type"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type statusMsg StatusSnapshot
type recentMsg []RecentTask
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

var httpClient = &http.Client{Timeout: 5 * time.Second}

func fetchStatus(apiURL string) tea.Msg {
	var snap StatusSnapshot
	if err := getJSON(apiURL+"/api/status", &snap); err != nil {
		return errMsg{err}
	}
	return statusMsg(snap)
}

func fetchRecent(apiURL string) tea.Msg {
	var tasks []RecentTask
	if err := getJSON(apiURL+"/api/recent?limit=10", &tasks); err != nil {
		return errMsg{err}
	}
	return recentMsg(tasks)
}

func getJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
