package models

import "time"

// DeviceClass identifies a kind of screen and the coin type that pays for it
type DeviceClass string

const (
	ClassSwitch DeviceClass = "switch"
	ClassTV     DeviceClass = "tv"
)

// DeviceClasses lists every known class in display order
var DeviceClasses = []DeviceClass{ClassSwitch, ClassTV}

// Valid reports whether c is one of the known classes
func (c DeviceClass) Valid() bool {
	return c == ClassSwitch || c == ClassTV
}

// Child represents a child profile with its coin and pocket money balances
type Child struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	PINHash                string    `json:"pin_hash,omitempty"`
	Avatar                 string    `json:"avatar"`
	SwitchCoins            int       `json:"switch_coins"`
	SwitchCoinsWeekly      int       `json:"switch_coins_weekly"`
	SwitchCoinsMax         int       `json:"switch_coins_max"`
	TVCoins                int       `json:"tv_coins"`
	TVCoinsWeekly          int       `json:"tv_coins_weekly"`
	TVCoinsMax             int       `json:"tv_coins_max"`
	PocketMoneyCents       int64     `json:"pocket_money_cents"`
	PocketMoneyWeeklyCents int64     `json:"pocket_money_weekly_cents"`
	AllowedPeriods         string    `json:"allowed_periods"`
	WeekendPeriods         string    `json:"weekend_periods"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Coins returns the current balance for a class
func (c *Child) Coins(class DeviceClass) int {
	if class == ClassSwitch {
		return c.SwitchCoins
	}
	return c.TVCoins
}

// WeeklyCoins returns the weekly refill amount for a class
func (c *Child) WeeklyCoins(class DeviceClass) int {
	if class == ClassSwitch {
		return c.SwitchCoinsWeekly
	}
	return c.TVCoinsWeekly
}

// MaxCoins returns the balance cap for a class
func (c *Child) MaxCoins(class DeviceClass) int {
	if class == ClassSwitch {
		return c.SwitchCoinsMax
	}
	return c.TVCoinsMax
}

// SetCoins stores a balance for a class
func (c *Child) SetCoins(class DeviceClass, n int) {
	if class == ClassSwitch {
		c.SwitchCoins = n
		return
	}
	c.TVCoins = n
}

// ChildSummary is the public view shown on the selection screen
type ChildSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
