package internal

// Version is reported by GET / and `dropflow -version`.
const Version = "1.0.0"
