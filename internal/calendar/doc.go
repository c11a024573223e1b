// Package calendar models the season's race weekends and their session
// times. The scheduler derives trigger jobs from it and the continuity
// selector uses round distance for cooldown checks.
package calendar
