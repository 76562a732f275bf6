package app

import "sort"

// LeaderboardItem is one ranked row of the live scoreboard.
type LeaderboardItem struct {
	DeviceID            string `json:"device_id"`
	TotalAnswers        int    `json:"total_answers"`
	TotalCorrectAnswers int    `json:"total_correct_answers"`
}

// BuildLeaderboard orders a statistics snapshot ascending by correct-answer
// count. Each device is placed by binary search after the block of devices
// with the same score, so ties keep the order devices were first seen in.
func BuildLeaderboard(snapshot []DeviceSnapshot) []LeaderboardItem {
	items := make([]LeaderboardItem, 0, len(snapshot))
	for _, device := range snapshot {
		pos := sort.Search(len(items), func(i int) bool {
			return items[i].TotalCorrectAnswers > device.TotalCorrectAnswers
		})
		items = append(items, LeaderboardItem{})
		copy(items[pos+1:], items[pos:])
		items[pos] = LeaderboardItem{
			DeviceID:            device.DeviceID,
			TotalAnswers:        device.TotalAnswers,
			TotalCorrectAnswers: device.TotalCorrectAnswers,
		}
	}
	return items
}
