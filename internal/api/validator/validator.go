// Package validator 注册请求绑定用的自定义校验标签
package validator

import (
	"errors"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"crb/backend/internal/model"
)

var (
	once    sync.Once
	initErr error
)

// Register 向 gin 的校验引擎注册 weekday / repeat_type，重复调用只注册一次
func Register() error {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			initErr = errors.New("gin 校验引擎不是 go-playground/validator")
			return
		}
		if initErr = v.RegisterValidation("weekday", Weekday); initErr != nil {
			return
		}
		initErr = v.RegisterValidation("repeat_type", RepeatType)
	})
	return initErr
}

// Weekday 1=周一 … 7=周日
func Weekday(fl validator.FieldLevel) bool {
	d := fl.Field().Int()
	return d >= 1 && d <= 7
}

// RepeatType 允许 none 与四种重复类型，大小写不敏感
func RepeatType(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case model.RepeatNone, model.RepeatDaily, model.RepeatWeekly, model.RepeatMonthly, model.RepeatYearly:
		return true
	}
	return false
}
