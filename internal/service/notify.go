package service

import (
	"fmt"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
)

type Notification struct {
	Phone string
	Body  string
}

// Notifier delivers customer notifications. Implementations must not block
// the caller on delivery.
type Notifier interface {
	Notify(n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

func notifyUser(notifier Notifier, user dbconnector.User, body string) {
	if notifier == nil || user.PhoneNumber == nil || *user.PhoneNumber == "" {
		return
	}
	notifier.Notify(Notification{Phone: *user.PhoneNumber, Body: body})
}

func RewardNotificationText(name string, rewardType dbconnector.RewardType, tierName string, visitCount int) string {
	switch rewardType {
	case dbconnector.RewardFreeCoffee:
		return fmt.Sprintf("🎉 Congratulations %s! You've earned a FREE COFFEE at %s tier (visit #%d). Come claim your reward!", name, tierName, visitCount)
	case dbconnector.RewardDiscount:
		return fmt.Sprintf("🎉 Congratulations %s! You've earned a DISCOUNT at %s tier (visit #%d). Come claim your reward!", name, tierName, visitCount)
	case dbconnector.RewardSpinner:
		return fmt.Sprintf("🎉 Congratulations %s! You've unlocked the SPINNER WHEEL at %s tier (visit #%d). Come spin for your reward!", name, tierName, visitCount)
	default:
		return fmt.Sprintf("🎉 Congratulations %s! You've earned a reward at %s tier (visit #%d). Come claim your reward!", name, tierName, visitCount)
	}
}

func TierProgressText(name string, visitCount int, nextTierName string, remaining int) string {
	return fmt.Sprintf("Hi %s! You're making great progress! You have %d visits. Just %d more %s to reach %s tier! 🚀",
		name, visitCount, remaining, plural(remaining, "visit"), nextTierName)
}

func SpinWonText(name, optionName string) string {
	return fmt.Sprintf("🎉 %s, the wheel has spoken: you won %s! Show this message at the counter.", name, optionName)
}
