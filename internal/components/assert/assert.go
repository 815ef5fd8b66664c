package assert

import "fmt"

func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(str, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", name))
	}
}

func Positive(value int, name string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %d", name, value))
	}
}
