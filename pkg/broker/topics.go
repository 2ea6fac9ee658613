package broker

// Vendor topic layout. The cloud addresses users and installations
// under the same "client/" prefix; requests to the vendor go under
// "server/<email>/...".

// UserTopic is where the cloud delivers updates for the account.
func UserTopic(email string) string {
	return "client/" + email
}

// InstallTopic is where thermostat commands for an installation are
// published.
func InstallTopic(installID string) string {
	return "client/" + installID
}

// ReferentialRequestTopic requests the numeric-key dictionary.
func ReferentialRequestTopic(email string) string {
	return "server/" + email + "/v1/install/user/referential"
}
