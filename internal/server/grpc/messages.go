package grpc

// Wire messages for the control service. These are carried by jsonCodec,
// so the json tags are the wire contract.

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RegisterResponse struct {
	ID int64 `json:"id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type UpdateRoleRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type UpdateRoleResponse struct{}

type DeleteUserRequest struct {
	UserID int64 `json:"user_id"`
}

type DeleteUserResponse struct{}

type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type ListUsersRequest struct{}

type ListUsersResponse struct {
	Users []*UserView `json:"users"`
}

type InstanceView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Status     string `json:"status"`
	MachineRef string `json:"machine_ref"`
}

type ProvisionRequest struct {
	Name string `json:"name"`
}

type InstanceResponse struct {
	Instance *InstanceView `json:"instance"`
}

type StartRequest struct {
	ID int64 `json:"id"`
}

type StopRequest struct {
	ID int64 `json:"id"`
}

type DeprovisionRequest struct {
	ID int64 `json:"id"`
}

type DeprovisionResponse struct{}

type GetInstanceRequest struct {
	ID int64 `json:"id"`
}

type ListInstancesRequest struct{}

type ListInstancesResponse struct {
	Instances []*InstanceView `json:"instances"`
}

type MachineView struct {
	Ref     string `json:"ref"`
	Address string `json:"address"`
}

type ListRunningRequest struct{}

type ListRunningResponse struct {
	Machines []*MachineView `json:"machines"`
}

type UploadSaveRequest struct {
	ID   int64  `json:"id"`
	Data []byte `json:"data"`
}

type UploadSaveResponse struct{}

type DownloadSaveRequest struct {
	ID int64 `json:"id"`
}

type DownloadSaveResponse struct {
	Data []byte `json:"data"`
}

type ListSavesRequest struct{}

type ListSavesResponse struct {
	Names []string `json:"names"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
