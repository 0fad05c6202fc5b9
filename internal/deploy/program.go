package deploy

import (
	"fmt"
	"os"

	"github.com/picklr-io/craftstack/internal/ir"
)

// Resource names declared by GameServer.
const (
	VpcName              = "minecraft-vpc"
	SubnetName           = "minecraft-subnet"
	InternetGatewayName  = "minecraft-igw"
	RouteTableName       = "minecraft-rt"
	RouteAssociationName = "minecraft-rt-association"
	SecurityGroupName    = "minecraft-sg"
	ImageName            = "ubuntu-ami"
	KeyPairName          = "minecraft-keypair"
	InstanceName         = "minecraft-instance"
)

// Output names exported by GameServer.
const (
	OutputPublicIP = "minecraft_vm_ip"
	OutputReadme   = "readme"
)

// Image query constants for the server image.
const (
	ImageNamePattern = "ubuntu-minimal/images/hvm-ssd/ubuntu-jammy-22.04*"
	ImageArch        = "x86_64"
	ImageOwner       = "099720109477" // Canonical
)

// Config parameterizes the game-server deployment.
type Config struct {
	Region           string
	AvailabilityZone string // defaults to Region + "a"
	InstanceType     string
	KeyName          string // defaults to "minecraft-" + stack
	PublicKeyPath    string
	UserDataPath     string
	ReadmePath       string
	Tags             map[string]string
}

// DefaultConfig returns the stock Frankfurt deployment.
func DefaultConfig() Config {
	return Config{
		Region:        "eu-central-1",
		InstanceType:  "t3.xlarge",
		PublicKeyPath: "minecraft.pub",
		UserDataPath:  "cloud-init.yaml",
		ReadmePath:    "Pulumi.README.md",
	}
}

func (c Config) zone() string {
	if c.AvailabilityZone != "" {
		return c.AvailabilityZone
	}
	return c.Region + "a"
}

func (c Config) tags(name string) map[string]string {
	tags := make(map[string]string, len(c.Tags)+1)
	for k, v := range c.Tags {
		tags[k] = v
	}
	tags["Name"] = name
	return tags
}

// GameServer declares a single-instance Minecraft server: a public network,
// a security group open on the game and SSH ports, a key pair and the
// instance itself. All local files are read before anything is declared.
func GameServer(b *Builder, cfg Config) error {
	if cfg.InstanceType == "" {
		return &ir.ConfigurationError{Resource: InstanceName, Reason: "instance type is required"}
	}
	if cfg.Region == "" && cfg.AvailabilityZone == "" {
		return &ir.ConfigurationError{Resource: SubnetName, Reason: "region or availability zone is required"}
	}

	publicKey, err := readFile(KeyPairName, "public key", cfg.PublicKeyPath)
	if err != nil {
		return err
	}
	userData, err := readFile(InstanceName, "user data", cfg.UserDataPath)
	if err != nil {
		return err
	}
	readme, err := readFile("output "+OutputReadme, "readme", cfg.ReadmePath)
	if err != nil {
		return err
	}

	vpc, err := b.Vpc(VpcName, &ir.VpcProps{
		CidrBlock:          "10.0.0.0/16",
		EnableDnsHostnames: true,
		EnableDnsSupport:   true,
		Tags:               cfg.tags(VpcName),
	})
	if err != nil {
		return err
	}

	subnet, err := b.Subnet(SubnetName, &ir.SubnetProps{
		VpcID:               vpc.ID(),
		CidrBlock:           "10.0.48.0/20",
		AvailabilityZone:    cfg.zone(),
		MapPublicIpOnLaunch: true,
		Tags:                cfg.tags(SubnetName),
	})
	if err != nil {
		return err
	}

	igw, err := b.InternetGateway(InternetGatewayName, &ir.InternetGatewayProps{
		VpcID: vpc.ID(),
		Tags:  cfg.tags(InternetGatewayName),
	})
	if err != nil {
		return err
	}

	rt, err := b.RouteTable(RouteTableName, &ir.RouteTableProps{
		VpcID: vpc.ID(),
		Routes: []ir.Route{
			{CidrBlock: "0.0.0.0/0", GatewayID: igw.ID()},
		},
		Tags: cfg.tags(RouteTableName),
	})
	if err != nil {
		return err
	}

	if _, err := b.RouteTableAssociation(RouteAssociationName, &ir.RouteTableAssociationProps{
		SubnetID:     subnet.ID(),
		RouteTableID: rt.ID(),
	}); err != nil {
		return err
	}

	sg, err := b.SecurityGroup(SecurityGroupName, &ir.SecurityGroupProps{
		Description: "Allow Minecraft traffic",
		VpcID:       vpc.ID(),
		Ingress: []ir.SecurityRule{
			{Description: "Minecraft", Protocol: "tcp", FromPort: 25565, ToPort: 25565, CidrBlocks: []string{"0.0.0.0/0"}},
			{Description: "SSH", Protocol: "tcp", FromPort: 22, ToPort: 22, CidrBlocks: []string{"0.0.0.0/0"}},
		},
		Egress: []ir.SecurityRule{
			{Description: "All", Protocol: "-1", FromPort: 0, ToPort: 0, CidrBlocks: []string{"0.0.0.0/0"}},
		},
		Tags: cfg.tags(SecurityGroupName),
	})
	if err != nil {
		return err
	}

	image, err := b.LookupImage(ImageName, &ir.ImageQueryProps{
		Filters: []ir.Filter{
			{Name: "name", Values: []string{ImageNamePattern}},
			{Name: "architecture", Values: []string{ImageArch}},
		},
		MostRecent: true,
		Owners:     []string{ImageOwner},
	})
	if err != nil {
		return err
	}

	keyName := cfg.KeyName
	if keyName == "" {
		// Key names are unique per region, so stacks must not share one.
		keyName = "minecraft-" + b.stack
	}
	keypair, err := b.KeyPair(KeyPairName, &ir.KeyPairProps{
		KeyName:   keyName,
		PublicKey: publicKey,
	})
	if err != nil {
		return err
	}

	instance, err := b.Instance(InstanceName, &ir.InstanceProps{
		InstanceType:     cfg.InstanceType,
		Ami:              image.ID(),
		SubnetID:         subnet.ID(),
		SecurityGroupIDs: []ir.Ref{sg.ID()},
		KeyName:          keypair.Attr("keyName"),
		UserData:         userData,
		Tags:             cfg.tags(InstanceName),
	})
	if err != nil {
		return err
	}

	if err := b.Export(OutputPublicIP, ir.FromRef(instance.Attr("publicIp"))); err != nil {
		return err
	}
	return b.Export(OutputReadme, ir.Lit(readme))
}

func readFile(resource, what, path string) (string, error) {
	if path == "" {
		return "", &ir.ConfigurationError{Resource: resource, Reason: what + " path is required"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ir.ConfigurationError{
			Resource: resource,
			Reason:   fmt.Sprintf("failed to read %s file %s", what, path),
			Err:      err,
		}
	}
	return string(data), nil
}
