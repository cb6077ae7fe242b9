package main

// profileIDSessionKey holds the random identifier of the browser profile. Survey state is scoped to it.
const profileIDSessionKey = "profile_id"
