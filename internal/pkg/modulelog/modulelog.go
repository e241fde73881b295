package modulelog

import (
	"encoding/json"

	"github.com/AmirHossein87/payment-plugins/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ModuleName tags every log row written by this integration.
const ModuleName = "paymenthood"

var db *gorm.DB

// Setup wires the module log to the host database. Without it every
// entry goes to the process log only.
func Setup(handle *gorm.DB) {
	db = handle
}

// Log records an integration action in the host's module-call log. The
// write is best effort: when the table is unreachable the entry falls
// back to the process log so no action goes unrecorded.
func Log(action string, request, response interface{}) {
	write(action, request, response, "")
}

// LogError records an action together with trace/error detail.
func LogError(action string, request interface{}, err error) {
	trace := ""
	if err != nil {
		trace = err.Error()
	}
	write(action, request, nil, trace)
}

func write(action string, request, response interface{}, trace string) {
	entry := models.ModuleCallLog{
		Module:       ModuleName,
		Action:       action,
		RequestJSON:  marshal(request),
		ResponseJSON: marshal(response),
		Trace:        trace,
	}

	if db != nil {
		err := db.Create(&entry).Error
		if err == nil {
			return
		}
		log.Warnf("[%s] module log write failed, falling back to process log: %v", ModuleName, err)
	}

	if trace != "" {
		log.Errorf("[%s] %s request=%s response=%s trace=%s", ModuleName, action, entry.RequestJSON, entry.ResponseJSON, trace)
		return
	}
	log.Infof("[%s] %s request=%s response=%s", ModuleName, action, entry.RequestJSON, entry.ResponseJSON)
}

func marshal(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		v = map[string]string{"data": s}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
