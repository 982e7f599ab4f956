// File: internal/config/site_config.go
package config

import "github.com/spf13/viper"

// DefaultAccountURL is the account home page. It serves the login form when
// signed out and the postings table when signed in.
const DefaultAccountURL = "https://accounts.craigslist.org/login/home"

// setSiteDefaults centralizes the site's URLs and selectors. Markup changes on
// the site should only ever require edits here or in the config file.
func setSiteDefaults(v *viper.Viper) {
	v.SetDefault("site.login_url", DefaultAccountURL)
	v.SetDefault("site.listings_url", DefaultAccountURL)

	// -- Login Form --
	v.SetDefault("site.email_input", "#inputEmailHandle")
	v.SetDefault("site.password_input", "#inputPassword")
	v.SetDefault("site.login_form", "form:has(#inputPassword)")
	v.SetDefault("site.login_buttons", `button, input[type="submit"], input[type="button"], [role="button"]`)
	v.SetDefault("site.login_text", "log in")
	v.SetDefault("site.submit_buttons", `button[type="submit"], input[type="submit"]`)

	// -- Session Markers --
	v.SetDefault("site.authenticated_marker", `a[href*="logout"], a[href*="logoff"], form[action*="logout"]`)
	v.SetDefault("site.challenge_marker", `iframe[src*="captcha"], iframe[title*="challenge"], .g-recaptcha, .h-captcha, #challenge-form, [id*="verification"]`)

	// -- Listings Table --
	v.SetDefault("site.listings_table", `table.account-table, table[data-event*="manage"]`)
	v.SetDefault("site.listing_rows", "table.account-table tr")
	v.SetDefault("site.header_cell", "th")
	v.SetDefault("site.title_cell", "td.title")
	v.SetDefault("site.status_cell", "td.status")
	v.SetDefault("site.posting_id_field", `input[name="postingID"]`)
	v.SetDefault("site.posting_id_attr", "value")
	v.SetDefault("site.repost_control", `form[action*="repost"] input[type="submit"], form[action*="renew"] input[type="submit"], input[type="submit"][value="repost"], input[type="submit"][value="renew"], a[href*="repost"], a[href*="renew"]`)
}
