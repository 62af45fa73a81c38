package rbac

// Default policy. Students own the attempt flow; teachers author quizzes and
// review attempt history.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:start",
		"attempt:save",
		"attempt:submit",
		"attempt:abandon",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:view",
		"quiz:create",
		"quiz:list",
		"attempt:view-all",
	},
	"admin": {
		"*", // everything
	},
}
