package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"
)

// Key builders for each cached resource class.

func AnalysisKey(groupID int64) string {
	return fmt.Sprintf("analysis:group:%d", groupID)
}

func ReportKey(groupID int64, dataHash string) string {
	return fmt.Sprintf("report:group:%d:%s", groupID, dataHash)
}

// GroupPatterns match every cached resource of a group. Resource classes are
// listed one by one so lock keys such as "lock:analysis:group:1" never match.
func GroupPatterns(groupID int64) []string {
	return []string{
		exact(AnalysisKey(groupID)),
		fmt.Sprintf("report:group:%d:*", groupID),
	}
}

// exact escapes the last byte of key, turning it into a glob that matches key
// alone instead of every key sharing its prefix.
func exact(key string) string {
	if key == "" {
		return key
	}
	return key[:len(key)-1] + `\` + key[len(key)-1:]
}

func AlertsKey(asin string) string {
	return "alerts:asin:" + asin
}

// AlertSummaryKey is the summary over the trailing window; AlertSummaryPrefix
// matches every window.
func AlertSummaryKey(window time.Duration) string {
	return fmt.Sprintf("%s%dm", AlertSummaryPrefix, int64(window/time.Minute))
}

const AlertSummaryPrefix = "alerts:summary:"

// GenerateDataHash creates a short hash of the input data so a cached result
// is reused only while the data it was derived from is unchanged.
func GenerateDataHash(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8])
}
