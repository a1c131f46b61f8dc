package server

import (
	"encoding/json"
	"net/http"
)

// HandleAdminConfig 提供房间规则的读取与更新（热更新）
// GET /admin/config?room=room-1  返回当前规则
// POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "room-1"
	}
	room := GetRoomManager().GetOrCreateRoom(roomID)

	type patch struct {
		AllowDiagonal    *bool `json:"allowDiagonal,omitempty"`
		MaxInputsPerTick *int  `json:"maxInputsPerTick,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(room.Settings())
		return
	case http.MethodPost:
		var body patch
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.MaxInputsPerTick != nil && *body.MaxInputsPerTick < 1 {
			http.Error(w, "maxInputsPerTick must be positive", http.StatusBadRequest)
			return
		}
		cur := room.UpdateSettings(func(s *RoomSettings) {
			if body.AllowDiagonal != nil {
				s.AllowDiagonal = *body.AllowDiagonal
			}
			if body.MaxInputsPerTick != nil {
				s.MaxInputsPerTick = *body.MaxInputsPerTick
			}
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "settings": cur})
		Log.Infof("config updated: room=%s allowDiagonal=%v maxInputsPerTick=%d",
			roomID, cur.AllowDiagonal, cur.MaxInputsPerTick)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=room-1
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "room-1"
	}
	room := GetRoomManager().GetOrCreateRoom(roomID)
	payload := map[string]any{
		"room":    roomID,
		"tick":    room.Tick(),
		"metrics": room.Metrics().Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
